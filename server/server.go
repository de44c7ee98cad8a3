// Package server exposes the pricer and the implied volatility solver over
// HTTP. It owns no state of its own; every request is solved from scratch.
package server

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/souvik131/impliedvol-go-library/bsm"
)

// inputGuidance mirrors the advice shown to users when a calculation fails.
const inputGuidance = "check that spot, strike, time to expiry and volatility are positive, that the option style is call or put, and try adjusting the initial volatility estimate"

type priceRequest struct {
	Style        string  `json:"style" binding:"required"`
	SpotPrice    float64 `json:"spot_price" binding:"required,gt=0"`
	StrikePrice  float64 `json:"strike_price" binding:"required,gt=0"`
	Volatility   float64 `json:"volatility" binding:"required,gt=0"`
	TimeToExpiry float64 `json:"time_to_expiry" binding:"required,gt=0"`
	RiskFreeRate float64 `json:"risk_free_rate"`
}

type impliedVolRequest struct {
	Style        string  `json:"style" binding:"required"`
	SpotPrice    float64 `json:"spot_price" binding:"required,gt=0"`
	StrikePrice  float64 `json:"strike_price" binding:"required,gt=0"`
	InitialGuess float64 `json:"initial_volatility_guess" binding:"required,gt=0"`
	TimeToExpiry float64 `json:"time_to_expiry" binding:"required,gt=0"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	MarketPrice  float64 `json:"market_price" binding:"required,gt=0"`
}

// New builds the HTTP shell around the bsm package.
func New() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.POST("/price", handlePrice)
	api.POST("/implied-volatility", handleImpliedVolatility)
	return r
}

func handlePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectInput(c, err)
		return
	}

	style, err := bsm.ParseOptionStyle(req.Style)
	if err != nil {
		rejectInput(c, err)
		return
	}

	in := bsm.MarketInputs{
		Style:        style,
		Spot:         req.SpotPrice,
		Strike:       req.StrikePrice,
		TimeToExpiry: req.TimeToExpiry,
		RiskFreeRate: req.RiskFreeRate,
	}
	price, err := bsm.Price(in, req.Volatility)
	if err != nil {
		rejectInput(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"price":  price,
		"inputs": req,
	})
}

func handleImpliedVolatility(c *gin.Context) {
	var req impliedVolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectInput(c, err)
		return
	}

	style, err := bsm.ParseOptionStyle(req.Style)
	if err != nil {
		rejectInput(c, err)
		return
	}

	in := bsm.MarketInputs{
		Style:        style,
		Spot:         req.SpotPrice,
		Strike:       req.StrikePrice,
		TimeToExpiry: req.TimeToExpiry,
		RiskFreeRate: req.RiskFreeRate,
	}
	result, err := bsm.SolveImpliedVolatility(in, req.InitialGuess, req.MarketPrice)
	if err != nil {
		rejectInput(c, err)
		return
	}

	// Reprice at the solved volatility so the caller can judge the fit,
	// convergence or not.
	validation, err := bsm.Price(in, result.ImpliedVolatility)
	if err != nil {
		rejectInput(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"implied_volatility": result.ImpliedVolatility,
		"iterations":         result.Iterations,
		"converged":          result.Converged(),
		"validation_price":   validation,
		"absolute_error":     math.Abs(validation - req.MarketPrice),
		"inputs":             req,
	})
}

// rejectInput maps style, domain and binding failures to a 400 with the
// standard guidance message.
func rejectInput(c *gin.Context, err error) {
	var domainErr *bsm.DomainError
	status := http.StatusBadRequest
	kind := "invalid_request"
	switch {
	case errors.Is(err, bsm.ErrInvalidStyle):
		kind = "invalid_style"
	case errors.As(err, &domainErr):
		kind = "domain_error"
	}
	c.JSON(status, gin.H{
		"error":    err.Error(),
		"kind":     kind,
		"guidance": inputGuidance,
	})
}
