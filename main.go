package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/souvik131/impliedvol-go-library/bsm"
	"github.com/souvik131/impliedvol-go-library/engine"
	"github.com/souvik131/impliedvol-go-library/server"
)

func main() {
	// Load environment variables
	if os.Getenv("IV_HTTP_ADDR") == "" {
		godotenv.Load()
	}

	// Optional HTTP shell alongside the MCP one
	if addr := os.Getenv("IV_HTTP_ADDR"); addr != "" {
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := server.New().Run(addr); err != nil {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}()
	}

	// Create MCP server
	srv := mcpserver.NewMCPServer("implied-vol-server", "1.0.0")
	registerPricingTools(srv)

	// Start the MCP server via stdio
	log.Println("Starting Implied Volatility MCP Server...")
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Fatalf("Failed to start MCP server: %v", err)
	}
}

func registerPricingTools(srv *mcpserver.MCPServer) {
	// Black-Scholes price tool
	priceTool := mcp.NewTool("bs_price",
		mcp.WithDescription("Price a European option with the Black-Scholes model"),
		mcp.WithString("style", mcp.Description("Option style: call or put"), mcp.Required()),
		mcp.WithNumber("spot_price", mcp.Description("Current price of the underlying asset"), mcp.Required()),
		mcp.WithNumber("strike_price", mcp.Description("Option exercise price"), mcp.Required()),
		mcp.WithNumber("volatility", mcp.Description("Annualized volatility"), mcp.Required()),
		mcp.WithNumber("time_to_expiry", mcp.Description("Time until expiration in years"), mcp.Required()),
		mcp.WithNumber("risk_free_rate", mcp.Description("Continuously compounded risk-free rate"), mcp.DefaultNumber(0)),
	)
	srv.AddTool(priceTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := marketInputsFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		volatility, err := request.RequireFloat("volatility")
		if err != nil {
			return mcp.NewToolResultError("volatility is required"), nil
		}

		price, err := bsm.Price(in, volatility)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to price option: %v (%s)", err, inputGuidance)), nil
		}

		resultBytes, _ := json.Marshal(map[string]interface{}{"price": price})
		return mcp.NewToolResultText(string(resultBytes)), nil
	})

	// Implied volatility tool
	impliedVolTool := mcp.NewTool("bs_implied_volatility",
		mcp.WithDescription("Solve the Black-Scholes implied volatility of a European option with Newton-Raphson"),
		mcp.WithString("style", mcp.Description("Option style: call or put"), mcp.Required()),
		mcp.WithNumber("spot_price", mcp.Description("Current price of the underlying asset"), mcp.Required()),
		mcp.WithNumber("strike_price", mcp.Description("Option exercise price"), mcp.Required()),
		mcp.WithNumber("time_to_expiry", mcp.Description("Time until expiration in years"), mcp.Required()),
		mcp.WithNumber("risk_free_rate", mcp.Description("Continuously compounded risk-free rate"), mcp.DefaultNumber(0)),
		mcp.WithNumber("market_price", mcp.Description("Observed market price of the option"), mcp.Required()),
		mcp.WithNumber("initial_volatility_guess", mcp.Description("Starting point for the iteration"), mcp.DefaultNumber(0.25)),
	)
	srv.AddTool(impliedVolTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := marketInputsFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		marketPrice, err := request.RequireFloat("market_price")
		if err != nil {
			return mcp.NewToolResultError("market_price is required"), nil
		}
		initialGuess := request.GetFloat("initial_volatility_guess", 0.25)

		result, err := bsm.SolveImpliedVolatility(in, initialGuess, marketPrice)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to solve implied volatility: %v (%s)", err, inputGuidance)), nil
		}

		validation, err := bsm.Price(in, result.ImpliedVolatility)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to validate solution: %v", err)), nil
		}

		resultBytes, _ := json.Marshal(map[string]interface{}{
			"implied_volatility": result.ImpliedVolatility,
			"iterations":         result.Iterations,
			"converged":          result.Converged(),
			"validation_price":   validation,
			"absolute_error":     math.Abs(validation - marketPrice),
			"inputs": map[string]interface{}{
				"style":                    string(in.Style),
				"spot_price":               in.Spot,
				"strike_price":             in.Strike,
				"time_to_expiry":           in.TimeToExpiry,
				"risk_free_rate":           in.RiskFreeRate,
				"market_price":             marketPrice,
				"initial_volatility_guess": initialGuess,
			},
		})
		return mcp.NewToolResultText(string(resultBytes)), nil
	})

	// Batch tool over the CSV engine
	batchTool := mcp.NewTool("bs_implied_volatility_batch",
		mcp.WithDescription("Solve implied volatilities for every option quote in a CSV file"),
		mcp.WithString("input_csv", mcp.Description("Path to the quote CSV (style, spot, strike, time_to_expiry, risk_free_rate, market_price, initial_guess)"), mcp.Required()),
		mcp.WithString("output_csv", mcp.Description("Path for the results CSV"), mcp.Required()),
	)
	srv.AddTool(batchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputPath, err := request.RequireString("input_csv")
		if err != nil {
			return mcp.NewToolResultError("input_csv is required"), nil
		}
		outputPath, err := request.RequireString("output_csv")
		if err != nil {
			return mcp.NewToolResultError("output_csv is required"), nil
		}

		results, err := engine.Run(inputPath, outputPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch run failed: %v", err)), nil
		}

		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		resultBytes, _ := json.Marshal(map[string]interface{}{
			"solved":     len(results) - failed,
			"failed":     failed,
			"output_csv": outputPath,
		})
		return mcp.NewToolResultText(string(resultBytes)), nil
	})

	log.Println("Registered all pricing MCP tools successfully")
}

const inputGuidance = "check that all inputs are positive and try adjusting your initial volatility estimate"

// marketInputsFromRequest reads the fields shared by the price and implied
// volatility tools.
func marketInputsFromRequest(request mcp.CallToolRequest) (bsm.MarketInputs, error) {
	token, err := request.RequireString("style")
	if err != nil {
		return bsm.MarketInputs{}, fmt.Errorf("style is required")
	}
	style, err := bsm.ParseOptionStyle(token)
	if err != nil {
		return bsm.MarketInputs{}, err
	}

	spot, err := request.RequireFloat("spot_price")
	if err != nil {
		return bsm.MarketInputs{}, fmt.Errorf("spot_price is required")
	}
	strike, err := request.RequireFloat("strike_price")
	if err != nil {
		return bsm.MarketInputs{}, fmt.Errorf("strike_price is required")
	}
	timeToExpiry, err := request.RequireFloat("time_to_expiry")
	if err != nil {
		return bsm.MarketInputs{}, fmt.Errorf("time_to_expiry is required")
	}
	riskFreeRate := request.GetFloat("risk_free_rate", 0)

	return bsm.MarketInputs{
		Style:        style,
		Spot:         spot,
		Strike:       strike,
		TimeToExpiry: timeToExpiry,
		RiskFreeRate: riskFreeRate,
	}, nil
}
