// Package engine batch-solves implied volatilities for CSV files of option
// quotes, one row per quote. Solved runs can additionally be appended to a
// zstd-compressed archive for later replay.
package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/slices"

	"github.com/souvik131/impliedvol-go-library/bsm"
)

var dateFormatConcise = "20060102"

// OptionQuote is one observed market quote read from the input CSV.
type OptionQuote struct {
	Style        string  `csv:"style"`
	Spot         float64 `csv:"spot"`
	Strike       float64 `csv:"strike"`
	TimeToExpiry float64 `csv:"time_to_expiry"`
	RiskFreeRate float64 `csv:"risk_free_rate"`
	MarketPrice  float64 `csv:"market_price"`
	InitialGuess float64 `csv:"initial_guess"`
}

// VolResult is one solved row written to the output CSV. Error holds the
// row-level failure message; the batch itself never aborts on a bad row.
type VolResult struct {
	Style             string  `csv:"style"`
	Strike            float64 `csv:"strike"`
	MarketPrice       float64 `csv:"market_price"`
	ImpliedVolatility float64 `csv:"implied_volatility"`
	Iterations        int     `csv:"iterations"`
	ValidationPrice   float64 `csv:"validation_price"`
	AbsoluteError     float64 `csv:"absolute_error"`
	Error             string  `csv:"error"`
}

// Solve computes the implied volatility for a single quote, mapping any
// style or domain failure into the result's Error column.
func Solve(q OptionQuote) VolResult {
	res := VolResult{Style: q.Style, Strike: q.Strike, MarketPrice: q.MarketPrice}

	style, err := bsm.ParseOptionStyle(q.Style)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	in := bsm.MarketInputs{
		Style:        style,
		Spot:         q.Spot,
		Strike:       q.Strike,
		TimeToExpiry: q.TimeToExpiry,
		RiskFreeRate: q.RiskFreeRate,
	}
	solved, err := bsm.SolveImpliedVolatility(in, q.InitialGuess, q.MarketPrice)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.ImpliedVolatility = solved.ImpliedVolatility
	res.Iterations = solved.Iterations

	validation, err := bsm.Price(in, solved.ImpliedVolatility)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.ValidationPrice = validation
	res.AbsoluteError = math.Abs(validation - q.MarketPrice)
	return res
}

// Run reads quotes from inputPath, solves each row, and writes the results
// to outputPath sorted by strike. When IV_ARCHIVE_DIR is set the run is also
// appended to that day's compressed archive.
func Run(inputPath, outputPath string) ([]VolResult, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var quotes []*OptionQuote
	if err := gocsv.UnmarshalFile(in, &quotes); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", inputPath, err)
	}

	results := make([]VolResult, 0, len(quotes))
	failed := 0
	for _, q := range quotes {
		res := Solve(*q)
		if res.Error != "" {
			failed++
		}
		results = append(results, res)
	}

	slices.SortFunc(results, func(a, b VolResult) int {
		switch {
		case a.Strike < b.Strike:
			return -1
		case a.Strike > b.Strike:
			return 1
		}
		return strings.Compare(a.Style, b.Style)
	})

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := gocsv.MarshalFile(&results, out); err != nil {
		return nil, fmt.Errorf("writing %s: %w", outputPath, err)
	}

	if dir := os.Getenv("IV_ARCHIVE_DIR"); dir != "" {
		if err := archive(dir, results); err != nil {
			log.Printf("%s", err)
		}
	}

	log.Printf("Solved %d quotes (%d failed) from %s", len(results), failed, inputPath)
	return results, nil
}

func archive(dir string, results []VolResult) error {
	b, err := gocsv.MarshalBytes(&results)
	if err != nil {
		return err
	}
	name := "implied_vol_" + time.Now().Format(dateFormatConcise) + ".csv.zstd"
	return appendToFile(filepath.Join(dir, name), b)
}

// ReadArchive returns the CSV payload of every run appended to an archive
// file, in write order. Each frame is a big-endian length prefix followed by
// the zstd-compressed payload.
func ReadArchive(path string) ([][]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var runs [][]byte
	for len(b) > 8 {
		sizeOfPacket := binary.BigEndian.Uint64(b[0:8])
		if sizeOfPacket+8 > uint64(len(b)) {
			return nil, fmt.Errorf("truncated archive frame in %s", path)
		}
		packet, err := decompress(b[8 : sizeOfPacket+8])
		if err != nil {
			return nil, err
		}
		runs = append(runs, packet)
		b = b[sizeOfPacket+8:]
	}
	return runs, nil
}

func compress(input []byte) ([]byte, error) {
	var b bytes.Buffer
	bestLevel := zstd.WithEncoderLevel(zstd.SpeedBestCompression)
	encoder, err := zstd.NewWriter(&b, bestLevel)
	if err != nil {
		return nil, err
	}

	_, err = encoder.Write(input)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	err = encoder.Close()
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decompress(input []byte) ([]byte, error) {
	b := bytes.NewReader(input)
	decoder, err := zstd.NewReader(b)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(decoder)
	if err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func appendToFile(filename string, data []byte) error {
	compressedData, err := compress(data)
	if err != nil {
		return err
	}

	bytesToSave := make([]byte, 8)
	binary.BigEndian.PutUint64(bytesToSave, uint64(len(compressedData)))
	bytesToSave = append(bytesToSave, compressedData...)

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(bytesToSave)
	if err != nil {
		return err
	}
	return nil
}
