// Package model wraps a simulator instance behind a facade that sorts its
// variables into inputs, outputs, states, parameters and free variables,
// binds time series to the inputs and runs the simulator over an interval.
//
// A Model moves through Empty, Loaded and Initialized:
//
//	m, err := model.Open("FirstOrder.yaml")
//	u, _ := m.GetInputByName("u")
//	_ = u.GetCsvReader().OpenCSV("data.csv")
//	_ = u.GetCsvReader().SetSelectedColumn("system.u")
//	_ = m.InitializeSimulator()
//	t, results, err := m.Simulate(model.SimulateOptions{})
//
// Load and ReInit always start from Empty. Values written with SetReal are
// kept and applied again whenever the simulator is initialized.
package model
