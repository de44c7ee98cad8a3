package bsm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionStyle identifies the exercise style of a European option.
// Call and Put are the only valid values.
type OptionStyle string

const (
	Call OptionStyle = "CALL"
	Put  OptionStyle = "PUT"
)

// ErrInvalidStyle is returned when an option style token is neither a call nor a put.
var ErrInvalidStyle = errors.New("option style must be a call or a put")

// ParseOptionStyle maps a user supplied token to an OptionStyle.
// "call"/"c" and "put"/"p" are accepted in any casing; everything else fails.
func ParseOptionStyle(token string) (OptionStyle, error) {
	switch strings.ToLower(token) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", fmt.Errorf("%w, got %q", ErrInvalidStyle, token)
}

// DomainError reports an input outside the domain of the Black-Scholes
// formulas (a non-positive value fed into a logarithm or a division).
type DomainError struct {
	Input string
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s must be positive, got %v", e.Input, e.Value)
}

// MarketInputs carries the observed market state for a single European
// option. Volatility is passed separately to Price and Vega because the
// solver varies it across iterations while everything here stays fixed.
type MarketInputs struct {
	Style        OptionStyle
	Spot         float64
	Strike       float64
	TimeToExpiry float64 // in years
	RiskFreeRate float64 // continuously compounded, may be negative
}

var stdNormal = distuv.UnitNormal

func checkDomain(in MarketInputs, volatility float64) error {
	switch {
	case in.Spot <= 0:
		return &DomainError{Input: "spot price", Value: in.Spot}
	case in.Strike <= 0:
		return &DomainError{Input: "strike price", Value: in.Strike}
	case in.TimeToExpiry <= 0:
		return &DomainError{Input: "time to expiry", Value: in.TimeToExpiry}
	case volatility <= 0:
		return &DomainError{Input: "volatility", Value: volatility}
	}
	return nil
}

// Price returns the Black-Scholes value of a European option.
//
// Call = S*CDF(d1) - K*exp(-rT)*CDF(d2)
// Put  = K*exp(-rT)*CDF(-d2) - S*CDF(-d1)
func Price(in MarketInputs, volatility float64) (float64, error) {
	if err := checkDomain(in, volatility); err != nil {
		return 0, err
	}

	sqrtT := math.Sqrt(in.TimeToExpiry)
	d1 := (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate+0.5*volatility*volatility)*in.TimeToExpiry) / (volatility * sqrtT)
	d2 := d1 - volatility*sqrtT
	discount := math.Exp(-in.RiskFreeRate * in.TimeToExpiry)

	switch in.Style {
	case Call:
		return in.Spot*stdNormal.CDF(d1) - in.Strike*discount*stdNormal.CDF(d2), nil
	case Put:
		return in.Strike*discount*stdNormal.CDF(-d2) - in.Spot*stdNormal.CDF(-d1), nil
	}
	return 0, fmt.Errorf("%w, got %q", ErrInvalidStyle, string(in.Style))
}

// Vega returns the derivative of the option price with respect to
// volatility. It is the same for calls and puts.
//
// Vega = K*exp(-rT)*PDF(d2)*sqrt(T), with d2 built directly from the
// (r - v^2/2) drift. The solver's iterate sequence depends on this exact
// d2-based variant; do not swap in the S*PDF(d1)*sqrt(T) form.
func Vega(in MarketInputs, volatility float64) (float64, error) {
	if err := checkDomain(in, volatility); err != nil {
		return 0, err
	}

	sqrtT := math.Sqrt(in.TimeToExpiry)
	d2 := (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate-0.5*volatility*volatility)*in.TimeToExpiry) / (volatility * sqrtT)
	return in.Strike * math.Exp(-in.RiskFreeRate*in.TimeToExpiry) * stdNormal.Prob(d2) * sqrtT, nil
}
