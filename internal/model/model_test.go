package model_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/engine/statespace"
	"github.com/tianwei1989/EstimationPy/internal/model"
	"github.com/tianwei1989/EstimationPy/internal/series"
)

var (
	firstOrder = filepath.Join("testdata", "FirstOrder.yaml")
	malformed  = filepath.Join("testdata", "Malformed.yaml")
	dataCSV    = filepath.Join("testdata", "SimulationData_FirstOrder.csv")

	epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
)

func at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

func last(v []float64) float64 { return v[len(v)-1] }

// flaky fails the n-th DoStep.
type flaky struct {
	engine.Instance
	failAt int
	calls  int
}

func (f *flaky) DoStep(currentTime, stepSize float64) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("solver diverged")
	}
	return f.Instance.DoStep(currentTime, stepSize)
}

func flakyLoader(failAt int) engine.Loader {
	return engine.LoaderFunc(func(path string) (engine.Instance, error) {
		inst, err := statespace.NewLoader().Load(path)
		if err != nil {
			return nil, err
		}
		return &flaky{Instance: inst, failAt: failAt}, nil
	})
}

// silent answers every read with no values.
type silent struct {
	engine.Instance
}

func (silent) GetReal(refs ...engine.ValueReference) ([]float64, error) { return nil, nil }

func silentLoader() engine.Loader {
	return engine.LoaderFunc(func(path string) (engine.Instance, error) {
		inst, err := statespace.NewLoader().Load(path)
		if err != nil {
			return nil, err
		}
		return silent{Instance: inst}, nil
	})
}

func mustSet(m *model.Model, name string, value float64) {
	GinkgoHelper()
	v, ok := m.GetVariableObject(name)
	Expect(ok).To(BeTrue(), name)
	Expect(m.SetReal(v, value)).To(Succeed())
}

// loadScenario sets up x' = -x + 4u, y = 6x with u = 1 over the first 30 seconds.
func loadScenario(opts ...model.Option) *model.Model {
	GinkgoHelper()
	m, err := model.Open(firstOrder, opts...)
	Expect(err).NotTo(HaveOccurred())

	mustSet(m, "a", -1)
	mustSet(m, "b", 4)
	mustSet(m, "c", 6)
	mustSet(m, "d", 0)

	u, ok := m.GetInputByName("u")
	Expect(ok).To(BeTrue())
	Expect(u.SetDataSeries(series.Constant(epoch, time.Second, 31, 1))).To(Succeed())
	return m
}

var _ = Describe("Model", func() {
	Describe("an empty model", func() {
		var m *model.Model

		BeforeEach(func() {
			m = model.New()
		})

		It("answers every accessor with empty values", func() {
			Expect(m.IsLoaded()).To(BeFalse())
			Expect(m.GetFmuName()).To(BeEmpty())
			Expect(m.GetFmuFilePath()).To(BeEmpty())
			Expect(m.GetFMU()).To(BeNil())
			Expect(m.GetProperties()).To(Equal(model.Properties{}))

			Expect(m.GetInputs()).NotTo(BeNil())
			Expect(m.GetInputs()).To(BeEmpty())
			Expect(m.GetOutputs()).To(BeEmpty())
			Expect(m.GetStates()).To(BeEmpty())
			Expect(m.GetParameters()).To(BeEmpty())
			Expect(m.GetVariables()).To(BeEmpty())
			Expect(m.GetInputNames()).NotTo(BeNil())
			Expect(m.GetNumInputs()).To(BeZero())
			Expect(m.GetNumOutputs()).To(BeZero())
			Expect(m.GetNumMeasuredOutputs()).To(BeZero())
			Expect(m.GetNumStates()).To(BeZero())

			_, ok := m.GetVariableObject("x")
			Expect(ok).To(BeFalse())
			Expect(m.String()).To(Equal("Model <empty>"))
		})

		It("refuses to initialize or simulate", func() {
			Expect(m.InitializeSimulator()).To(MatchError(model.ErrNotReady))

			t, res, err := m.Simulate(model.SimulateOptions{})
			Expect(err).To(MatchError(model.ErrNotReady))
			Expect(t).To(BeNil())
			Expect(res).To(BeNil())

			_, err = m.GetState()
			Expect(err).To(MatchError(model.ErrNotReady))
		})
	})

	Describe("loading", func() {
		It("classifies the FirstOrder variables", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())

			Expect(m.GetFmuName()).To(Equal("FmuExamples.FirstOrder"))
			Expect(m.GetFmuFilePath()).To(Equal(firstOrder))
			props := m.GetProperties()
			Expect(props.Author).To(Equal("Marco Bonvini"))
			Expect(props.Version).To(Equal("1.0"))
			Expect(props.NumStates).To(Equal(1))

			Expect(m.GetInputNames()).To(Equal([]string{"u"}))
			Expect(m.GetOutputNames()).To(Equal([]string{"y", "x"}))
			Expect(m.GetStateNames()).To(Equal([]string{"x"}))
			Expect(m.GetNumParameters()).To(BeZero())
			Expect(m.GetNumVariables()).To(BeZero())

			x, ok := m.GetOutputByName("x")
			Expect(ok).To(BeTrue())
			Expect(x.IsState()).To(BeTrue())
			Expect(m.GetStates()[0]).To(BeIdenticalTo(x))
		})

		It("keeps lookups inside their class", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())

			_, ok := m.GetInputByName("y")
			Expect(ok).To(BeFalse())
			_, ok = m.GetOutputByName("u")
			Expect(ok).To(BeFalse())
			_, ok = m.GetInputByName("u")
			Expect(ok).To(BeTrue())

			a, ok := m.GetVariableObject("a")
			Expect(ok).To(BeTrue())
			Expect(a.Causality()).To(Equal(engine.Internal))
			Expect(a.Start()).To(Equal(-1.0))
		})

		It("reports missing and malformed descriptions as load errors", func() {
			m := model.New()

			err := m.Load(filepath.Join("testdata", "nope.yaml"))
			Expect(err).To(MatchError(model.ErrLoad))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
			var le *model.LoadError
			Expect(errors.As(err, &le)).To(BeTrue())
			Expect(le.Path).To(HaveSuffix("nope.yaml"))

			Expect(m.Load(malformed)).To(MatchError(model.ErrLoad))
			Expect(m.IsLoaded()).To(BeFalse())
		})

		It("leaves the model empty when a reload fails", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())

			Expect(m.ReInit(malformed)).To(MatchError(model.ErrLoad))
			Expect(m.GetFmuName()).To(BeEmpty())
			Expect(m.GetOutputs()).To(BeEmpty())
		})

		It("makes ReInit equivalent to a fresh load", func() {
			fresh, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())

			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())
			old, _ := m.GetVariableObject("b")

			Expect(m.ReInit(firstOrder)).To(Succeed())
			Expect(m.IsInitialized()).To(BeFalse())
			Expect(m.GetInputNames()).To(Equal(fresh.GetInputNames()))
			Expect(m.GetOutputNames()).To(Equal(fresh.GetOutputNames()))
			Expect(m.GetProperties()).To(Equal(fresh.GetProperties()))

			u, _ := m.GetInputByName("u")
			Expect(u.IsBound()).To(BeFalse())

			b, _ := m.GetVariableObject("b")
			Expect(m.GetReal(b)).To(Equal(2.5))
			Expect(m.SetReal(old, 1)).To(MatchError(model.ErrInvalidVariable))
		})
	})

	Describe("reading and writing values", func() {
		var m *model.Model

		BeforeEach(func() {
			var err error
			m, err = model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
		})

		It("round-trips SetReal and GetReal", func() {
			a, _ := m.GetVariableObject("a")
			Expect(m.SetReal(a, -2)).To(Succeed())
			Expect(m.GetReal(a)).To(Equal(-2.0))
		})

		It("rejects nil and foreign variables", func() {
			Expect(m.SetReal(nil, 1)).To(MatchError(model.ErrInvalidVariable))

			var in *model.Input
			_, err := m.GetReal(in)
			Expect(err).To(MatchError(model.ErrInvalidVariable))

			other, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			u, _ := other.GetInputByName("u")
			Expect(m.SetReal(u, 1)).To(MatchError(model.ErrInvalidVariable))
		})

		It("does not write computed outputs", func() {
			y, _ := m.GetOutputByName("y")
			Expect(m.SetReal(y, 1)).To(MatchError(statespace.ErrReadOnly))
		})

		It("reads and writes the state vector", func() {
			Expect(m.SetState([]float64{3})).To(Succeed())
			Expect(m.GetState()).To(Equal([]float64{3}))
			Expect(m.SetState([]float64{1, 2})).NotTo(Succeed())
		})

		It("keeps values across initialization", func() {
			mustSet(m, "c", 10)
			Expect(m.InitializeSimulator()).To(Succeed())
			c, _ := m.GetVariableObject("c")
			Expect(m.GetReal(c)).To(Equal(10.0))
		})

		It("fails when the engine answers a read with no value", func() {
			quiet, err := model.Open(firstOrder, model.WithLoader(silentLoader()))
			Expect(err).NotTo(HaveOccurred())
			a, _ := quiet.GetVariableObject("a")
			_, err = quiet.GetReal(a)
			Expect(err).To(MatchError(model.ErrSimulation))

			Expect(quiet.InitializeSimulator()).To(Succeed())
			t, res, err := quiet.Simulate(model.SimulateOptions{StartTime: at(0), FinalTime: at(5)})
			Expect(err).To(MatchError(model.ErrSimulation))
			Expect(t).To(BeNil())
			Expect(res).To(BeNil())
		})
	})

	Describe("initializing", func() {
		It("requires data on every input in strict mode", func() {
			m, err := model.Open(firstOrder, model.WithStrictInputs(true))
			Expect(err).NotTo(HaveOccurred())

			err = m.InitializeSimulator()
			Expect(err).To(MatchError(model.ErrUnboundInput))
			var ue *model.UnboundInputError
			Expect(errors.As(err, &ue)).To(BeTrue())
			Expect(ue.Name).To(Equal("u"))
			Expect(m.IsInitialized()).To(BeFalse())
		})

		It("keeps the engine value for unbound inputs otherwise", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.InitializeSimulator()).To(Succeed())

			t, res, err := m.Simulate(model.SimulateOptions{StartTime: at(0), FinalTime: at(5), Intervals: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(HaveLen(11))
			Expect(res["x"]).To(HaveEach(BeNumerically("~", 0, 1e-12)))
		})

		It("surfaces data source errors", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			u, _ := m.GetInputByName("u")
			Expect(u.GetCsvReader().OpenCSV(dataCSV)).To(Succeed())

			Expect(m.InitializeSimulator()).To(MatchError(series.ErrNoColumnSelected))
		})
	})

	Describe("simulating", func() {
		It("fails before InitializeSimulator", func() {
			m := loadScenario()
			_, _, err := m.Simulate(model.SimulateOptions{})
			Expect(err).To(MatchError(model.ErrNotInitialized))
		})

		It("runs over the span of a CSV bound input", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			u, _ := m.GetInputByName("u")
			Expect(u.GetCsvReader().OpenCSV(dataCSV)).To(Succeed())
			Expect(u.GetCsvReader().SetSelectedColumn("system.u")).To(Succeed())
			Expect(m.InitializeSimulator()).To(Succeed())

			t, res, err := m.Simulate(model.SimulateOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(HaveLen(31))
			Expect(t[0]).To(BeTemporally("==", epoch))
			Expect(t[30]).To(BeTemporally("==", at(30)))
			Expect(res).To(HaveLen(2))
			Expect(res["y"]).To(HaveLen(31))
			Expect(res["x"]).To(HaveLen(31))

			// x' = -x + 2.5u, y = 3x + 0.1u
			Expect(res["x"][0]).To(BeNumerically("~", 0, 1e-12))
			Expect(res["y"][0]).To(BeNumerically("~", 0.1, 1e-12))
			Expect(last(res["x"])).To(BeNumerically("~", 2.5, 1e-6))
			Expect(last(res["y"])).To(BeNumerically("~", 7.6, 1e-5))
		})

		It("drives the first order system to its steady state", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			t, res, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25)})
			Expect(err).NotTo(HaveOccurred())
			Expect(t[0]).To(BeTemporally("==", at(10)))
			Expect(t[len(t)-1]).To(BeTemporally("==", at(25)))
			Expect(last(res["x"])).To(BeNumerically("~", 4, 1e-4))
			Expect(last(res["y"])).To(BeNumerically("~", 24, 1e-4))
		})

		It("is idempotent", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())
			opts := model.SimulateOptions{StartTime: at(10), FinalTime: at(25)}

			t1, r1, err := m.Simulate(opts)
			Expect(err).NotTo(HaveOccurred())
			t2, r2, err := m.Simulate(opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(t2).To(Equal(t1))
			Expect(r2).To(Equal(r1))
		})

		It("lands exactly on the final time", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			t, _, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25), StepSize: 4 * time.Second})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal([]time.Time{at(10), at(14), at(18), at(22), at(25)}))

			t, _, err = m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25), Intervals: 15})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(HaveLen(16))
			Expect(t[15]).To(Equal(at(25)))
		})

		It("never leaves a sliver step at the end of the grid", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			third := time.Second / 3
			t, _, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(11), StepSize: third})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal([]time.Time{at(10), at(10).Add(third), at(10).Add(2 * third), at(11)}))

			t, _, err = m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(11), StepSize: 250 * time.Millisecond})
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(HaveLen(5))
			for k := 1; k < len(t); k++ {
				Expect(t[k].Sub(t[k-1])).To(Equal(250 * time.Millisecond))
			}
		})

		It("validates the interval", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			_, _, err := m.Simulate(model.SimulateOptions{StartTime: at(20), FinalTime: at(10)})
			Expect(err).To(MatchError(model.ErrInvalidInterval))

			free, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			Expect(free.InitializeSimulator()).To(Succeed())
			_, _, err = free.Simulate(model.SimulateOptions{StartTime: at(0)})
			Expect(err).To(MatchError(model.ErrNoTimeBounds))
		})

		It("continues from the current state", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			_, whole, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25)})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(20)})
			Expect(err).NotTo(HaveOccurred())
			_, tail, err := m.Simulate(model.SimulateOptions{StartTime: at(20), FinalTime: at(25), Continue: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(last(tail["x"])).To(BeNumerically("~", last(whole["x"]), 1e-9))
		})

		It("stops when the context is cancelled", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			t, res, err := m.SimulateContext(ctx, model.SimulateOptions{StartTime: at(10), FinalTime: at(25)})
			Expect(err).To(MatchError(context.Canceled))
			Expect(t).To(BeNil())
			Expect(res).To(BeNil())
		})

		It("returns nothing when the engine fails mid-run", func() {
			m := loadScenario(model.WithLoader(flakyLoader(3)))
			Expect(m.InitializeSimulator()).To(Succeed())

			t, res, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25)})
			Expect(err).To(MatchError(model.ErrSimulation))
			var se *model.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Step).To(Equal(3))
			Expect(se.Time).To(BeTemporally("==", at(13)))
			Expect(t).To(BeNil())
			Expect(res).To(BeNil())
		})

		It("starts over after a failed run even when asked to continue", func() {
			m := loadScenario(model.WithLoader(flakyLoader(3)))
			Expect(m.InitializeSimulator()).To(Succeed())

			_, _, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25)})
			Expect(err).To(MatchError(model.ErrSimulation))

			_, res, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(25), Continue: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(res["x"][0]).To(BeNumerically("~", 0, 1e-12))
			Expect(last(res["x"])).To(BeNumerically("~", 4, 1e-4))
		})

		It("starts over after a cancelled run even when asked to continue", func() {
			m := loadScenario()
			Expect(m.InitializeSimulator()).To(Succeed())

			_, _, err := m.Simulate(model.SimulateOptions{StartTime: at(10), FinalTime: at(20)})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, _, err = m.SimulateContext(ctx, model.SimulateOptions{StartTime: at(20), FinalTime: at(25), Continue: true})
			Expect(err).To(MatchError(context.Canceled))

			_, res, err := m.Simulate(model.SimulateOptions{StartTime: at(20), FinalTime: at(25), Continue: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(res["x"][0]).To(BeNumerically("~", 0, 1e-12))
		})
	})

	Describe("measured outputs", func() {
		It("samples attached measurements", func() {
			m, err := model.Open(firstOrder)
			Expect(err).NotTo(HaveOccurred())
			y, _ := m.GetOutputByName("y")
			Expect(y.IsMeasured()).To(BeFalse())

			Expect(y.GetCsvReader().OpenCSV(dataCSV)).To(Succeed())
			Expect(y.GetCsvReader().SetSelectedColumn("system.y")).To(Succeed())
			Expect(m.GetNumMeasuredOutputs()).To(Equal(1))
			Expect(m.GetMeasuredOutputs()[0]).To(BeIdenticalTo(y))

			vals, err := m.GetMeasuredValues(at(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(vals).To(HaveKeyWithValue("y", BeNumerically("~", 15.170893, 1e-6)))
		})
	})

	Describe("Pool", func() {
		opts := model.SimulateOptions{StartTime: at(10), FinalTime: at(25)}

		It("runs jobs in parallel and leaves replicas clean", func() {
			proto := loadScenario()
			pool, err := model.NewPool(proto, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(pool.Size()).To(Equal(3))

			jobs := []model.Job{
				{Parameters: map[string]float64{"b": 1}},
				{Parameters: map[string]float64{"b": 2}},
				{Parameters: map[string]float64{"b": 3}, State: []float64{1}},
				{},
				{Parameters: map[string]float64{"c": 1}},
			}
			runs, err := pool.Run(context.Background(), opts, jobs)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(len(jobs)))

			Expect(last(runs[0].Results["x"])).To(BeNumerically("~", 1, 1e-4))
			Expect(last(runs[1].Results["x"])).To(BeNumerically("~", 2, 1e-4))
			Expect(runs[2].Results["x"][0]).To(Equal(1.0))
			Expect(last(runs[3].Results["y"])).To(BeNumerically("~", 24, 1e-4))
			Expect(last(runs[4].Results["y"])).To(BeNumerically("~", 4, 1e-4))

			again, err := pool.Run(context.Background(), opts, []model.Job{{}, {}, {}})
			Expect(err).NotTo(HaveOccurred())
			for _, r := range again {
				Expect(last(r.Results["x"])).To(BeNumerically("~", 4, 1e-4))
				Expect(r.Results["x"][0]).To(Equal(0.0))
			}
		})

		It("fails the batch on an unknown parameter", func() {
			pool, err := model.NewPool(loadScenario(), 2)
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Run(context.Background(), opts, []model.Job{{Parameters: map[string]float64{"zeta": 1}}})
			Expect(err).To(MatchError(model.ErrInvalidVariable))
		})

		It("needs a loaded prototype", func() {
			_, err := model.NewPool(model.New(), 2)
			Expect(err).To(MatchError(model.ErrNotReady))
		})
	})
})
