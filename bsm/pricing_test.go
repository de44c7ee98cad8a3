package bsm_test

import (
	"errors"
	"math"
	"testing"

	"github.com/souvik131/impliedvol-go-library/bsm"
)

const tolerance = 1e-4

// approxEqual checks if two float64 values are approximately equal within a given tolerance.
func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestParseOptionStyle(t *testing.T) {
	valid := map[string]bsm.OptionStyle{
		"call": bsm.Call,
		"CALL": bsm.Call,
		"c":    bsm.Call,
		"C":    bsm.Call,
		"put":  bsm.Put,
		"Put":  bsm.Put,
		"p":    bsm.Put,
	}
	for token, want := range valid {
		style, err := bsm.ParseOptionStyle(token)
		if err != nil {
			t.Errorf("ParseOptionStyle(%q) returned an error: %v", token, err)
		}
		if style != want {
			t.Errorf("ParseOptionStyle(%q): expected %v, got %v", token, want, style)
		}
	}

	for _, token := range []string{"straddle", "", "callput", "cc"} {
		_, err := bsm.ParseOptionStyle(token)
		if !errors.Is(err, bsm.ErrInvalidStyle) {
			t.Errorf("ParseOptionStyle(%q): expected ErrInvalidStyle, got %v", token, err)
		}
	}
}

func TestPrice(t *testing.T) {
	t.Run("CallOption_ATM", func(t *testing.T) {
		in := bsm.MarketInputs{
			Style:        bsm.Call,
			Spot:         100.0,
			Strike:       100.0,
			TimeToExpiry: 1.0,
			RiskFreeRate: 0.05,
		}
		price, err := bsm.Price(in, 0.20)
		if err != nil {
			t.Fatalf("Price returned an error for call option: %v", err)
		}
		if !approxEqual(price, 10.4506, tolerance) {
			t.Errorf("Call price: expected %v, got %v", 10.4506, price)
		}
	})

	t.Run("PutOption_ATM", func(t *testing.T) {
		in := bsm.MarketInputs{
			Style:        bsm.Put,
			Spot:         100.0,
			Strike:       100.0,
			TimeToExpiry: 1.0,
			RiskFreeRate: 0.05,
		}
		price, err := bsm.Price(in, 0.20)
		if err != nil {
			t.Fatalf("Price returned an error for put option: %v", err)
		}
		if !approxEqual(price, 5.5735, tolerance) {
			t.Errorf("Put price: expected %v, got %v", 5.5735, price)
		}
	})

	t.Run("PutCallParity", func(t *testing.T) {
		cases := []struct {
			spot, strike, sigma, tau, rate float64
		}{
			{100, 100, 0.20, 1.0, 0.05},
			{100, 120, 0.30, 1.0, 0.05},
			{50, 45, 0.55, 0.25, 0.01},
			{250, 300, 0.10, 2.0, -0.01},
		}
		for _, c := range cases {
			call := bsm.MarketInputs{Style: bsm.Call, Spot: c.spot, Strike: c.strike, TimeToExpiry: c.tau, RiskFreeRate: c.rate}
			put := call
			put.Style = bsm.Put

			callPrice, err := bsm.Price(call, c.sigma)
			if err != nil {
				t.Fatalf("Price(call) returned an error: %v", err)
			}
			putPrice, err := bsm.Price(put, c.sigma)
			if err != nil {
				t.Fatalf("Price(put) returned an error: %v", err)
			}

			parity := c.spot - c.strike*math.Exp(-c.rate*c.tau)
			if !approxEqual(callPrice-putPrice, parity, 1e-8) {
				t.Errorf("Put-call parity broken for %+v: call-put=%v, S-K*exp(-rT)=%v", c, callPrice-putPrice, parity)
			}
		}
	})

	t.Run("CallPrice_IncreasingInVolatility", func(t *testing.T) {
		in := bsm.MarketInputs{
			Style:        bsm.Call,
			Spot:         100.0,
			Strike:       110.0,
			TimeToExpiry: 0.5,
			RiskFreeRate: 0.03,
		}
		prev := -math.MaxFloat64
		for sigma := 0.05; sigma <= 3.0; sigma += 0.05 {
			price, err := bsm.Price(in, sigma)
			if err != nil {
				t.Fatalf("Price returned an error at sigma=%v: %v", sigma, err)
			}
			if price <= prev {
				t.Fatalf("Call price not strictly increasing at sigma=%v: %v <= %v", sigma, price, prev)
			}
			prev = price
		}
	})

	t.Run("InvalidStyle", func(t *testing.T) {
		in := bsm.MarketInputs{
			Style:        bsm.OptionStyle("STRADDLE"),
			Spot:         100.0,
			Strike:       100.0,
			TimeToExpiry: 1.0,
			RiskFreeRate: 0.05,
		}
		_, err := bsm.Price(in, 0.20)
		if !errors.Is(err, bsm.ErrInvalidStyle) {
			t.Errorf("Expected ErrInvalidStyle for straddle, got %v", err)
		}
	})

	t.Run("DomainErrors", func(t *testing.T) {
		base := bsm.MarketInputs{
			Style:        bsm.Call,
			Spot:         100.0,
			Strike:       100.0,
			TimeToExpiry: 1.0,
			RiskFreeRate: 0.05,
		}
		cases := []struct {
			name   string
			mutate func(*bsm.MarketInputs)
			sigma  float64
			input  string
		}{
			{"ZeroSpot", func(in *bsm.MarketInputs) { in.Spot = 0 }, 0.2, "spot price"},
			{"NegativeStrike", func(in *bsm.MarketInputs) { in.Strike = -5 }, 0.2, "strike price"},
			{"ZeroTime", func(in *bsm.MarketInputs) { in.TimeToExpiry = 0 }, 0.2, "time to expiry"},
			{"ZeroVolatility", func(in *bsm.MarketInputs) {}, 0, "volatility"},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				in := base
				c.mutate(&in)
				_, err := bsm.Price(in, c.sigma)
				var domainErr *bsm.DomainError
				if !errors.As(err, &domainErr) {
					t.Fatalf("Expected DomainError, got %v", err)
				}
				if domainErr.Input != c.input {
					t.Errorf("DomainError input: expected %q, got %q", c.input, domainErr.Input)
				}

				// Vega checks the same preconditions.
				_, err = bsm.Vega(in, c.sigma)
				if !errors.As(err, &domainErr) {
					t.Errorf("Vega: expected DomainError, got %v", err)
				}
			})
		}
	})
}

func TestVega(t *testing.T) {
	t.Run("PositiveForValidInputs", func(t *testing.T) {
		cases := []struct {
			spot, strike, sigma, tau, rate float64
		}{
			{100, 100, 0.20, 1.0, 0.05},
			{100, 120, 0.30, 1.0, 0.05},
			{80, 100, 0.45, 0.1, 0.02},
			{120, 100, 1.50, 3.0, -0.005},
		}
		for _, c := range cases {
			in := bsm.MarketInputs{Style: bsm.Call, Spot: c.spot, Strike: c.strike, TimeToExpiry: c.tau, RiskFreeRate: c.rate}
			vega, err := bsm.Vega(in, c.sigma)
			if err != nil {
				t.Fatalf("Vega returned an error for %+v: %v", c, err)
			}
			if vega <= 0 {
				t.Errorf("Vega not positive for %+v: got %v", c, vega)
			}
		}
	})

	t.Run("MatchesPriceSensitivity", func(t *testing.T) {
		// Central difference of the price against the analytic vega. The
		// d2-based form equals K*exp(-rT)*PDF(d2)*sqrt(T) = S*PDF(d1)*sqrt(T)
		// analytically, so the finite difference must agree for both styles.
		const bump = 1e-5
		for _, style := range []bsm.OptionStyle{bsm.Call, bsm.Put} {
			in := bsm.MarketInputs{Style: style, Spot: 100, Strike: 105, TimeToExpiry: 0.75, RiskFreeRate: 0.04}
			sigma := 0.35

			up, err := bsm.Price(in, sigma+bump)
			if err != nil {
				t.Fatalf("Price returned an error: %v", err)
			}
			down, err := bsm.Price(in, sigma-bump)
			if err != nil {
				t.Fatalf("Price returned an error: %v", err)
			}
			vega, err := bsm.Vega(in, sigma)
			if err != nil {
				t.Fatalf("Vega returned an error: %v", err)
			}

			numeric := (up - down) / (2 * bump)
			if !approxEqual(vega, numeric, tolerance) {
				t.Errorf("%s vega: analytic %v, finite difference %v", style, vega, numeric)
			}
		}
	})
}
