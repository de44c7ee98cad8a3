package bsm

import "math"

const (
	// MaxIterations caps the Newton-Raphson loop. Hitting the cap is not an
	// error; the caller judges the fit by repricing with the returned value.
	MaxIterations = 100

	convergenceTolerance = 1e-10
	flatVegaThreshold    = 1e-12
	flatVegaNudge        = 0.01
	minVolatility        = 0.001
	maxVolatility        = 5.0
)

// Result is the immutable outcome of one implied volatility solve.
type Result struct {
	ImpliedVolatility float64
	Iterations        int
}

// Converged reports whether the solve stopped before exhausting the
// iteration cap.
func (r Result) Converged() bool {
	return r.Iterations < MaxIterations
}

// SolveImpliedVolatility finds the volatility that reprices the option at
// marketPrice using Newton-Raphson on the price residual and vega.
//
// The estimate is clamped into [0.001, 5.0] after every Newton step, and
// regions where vega is numerically flat are escaped by nudging the
// estimate up 0.01 instead of dividing. The iterate sequence is fully
// deterministic for identical inputs.
//
// Domain errors from the pricer or vega abort the solve with no partial
// result. Exhausting the cap does not: the last estimate and the iteration
// count are returned either way.
func SolveImpliedVolatility(in MarketInputs, initialGuess, marketPrice float64) (Result, error) {
	volatility := initialGuess
	iterations := 0
	residual := math.Inf(1)

	for math.Abs(residual) > convergenceTolerance && iterations < MaxIterations {
		theoretical, err := Price(in, volatility)
		if err != nil {
			return Result{}, err
		}
		vega, err := Vega(in, volatility)
		if err != nil {
			return Result{}, err
		}

		residual = theoretical - marketPrice

		// No usable Newton step when vega is flat; step sideways instead.
		if math.Abs(vega) < flatVegaThreshold {
			volatility += flatVegaNudge
			iterations++
			continue
		}

		volatility -= residual / vega
		volatility = math.Max(minVolatility, math.Min(maxVolatility, volatility))
		iterations++
	}

	return Result{ImpliedVolatility: volatility, Iterations: iterations}, nil
}
