package integrators

import (
	"math"

	"github.com/tianwei1989/EstimationPy/internal/dynamo"
)

// Dormand-Prince 5(4) tableau.
var (
	dpNodes = [7]float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1}

	dpCoupling = [7][6]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	}

	// fifth order weights minus the embedded fourth order weights
	dpErrWeights = [7]float64{
		35.0/384.0 - 5179.0/57600.0,
		0,
		500.0/1113.0 - 7571.0/16695.0,
		125.0/192.0 - 393.0/640.0,
		-2187.0/6784.0 + 92097.0/339200.0,
		11.0/84.0 - 187.0/2100.0,
		-1.0 / 40.0,
	}
)

type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) Name() string { return "rk45" }

func (r *RK45) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	newX, _, _ := r.StepAdaptive(sys, x, u, t, dt, 1e-6)
	return newX
}

func (r *RK45) StepAdaptive(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	n := len(x)
	var k [7]dynamo.State
	var xNew dynamo.State

	k[0] = sys.Derive(x, u, t)
	for s := 1; s < 7; s++ {
		xs := x.Clone()
		for j := 0; j < s; j++ {
			w := dpCoupling[s][j]
			if w == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				xs[i] += dt * w * k[j][i]
			}
		}
		k[s] = sys.Derive(xs, u, t+dpNodes[s]*dt)
		xNew = xs
	}

	// the last stage is evaluated at the fifth order solution (FSAL)
	errMax := 0.0
	for i := 0; i < n; i++ {
		est := 0.0
		for j, w := range dpErrWeights {
			est += w * k[j][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}

	errRatio := errMax / tol
	if errRatio > 1 {
		return xNew, r.nextStep(dt, errRatio), dynamo.ErrStepRejected
	}
	return xNew, r.nextStep(dt, errRatio), nil
}

func (r *RK45) nextStep(dt, errRatio float64) float64 {
	switch {
	case errRatio > 1:
		return dt * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		return dt * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		return dt * r.maxScale
	}
}
