// Package estimate computes a rough catalytic-converter precious-metal estimate
// from a vehicle's model year and engine displacement.
//
// The figures are a heuristic: newer vehicles are assumed to carry less metal
// and larger engines more. Prices are a fixed snapshot, not live quotes.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/WessleyAI/vinwizard/engine/domain"
)

const (
	baselineYear      = 2000
	yearSpan          = 20.0
	baselineDispL     = 3.0
	GramsPerTroyOunce = 28.34952
)

// Metal is a precious metal found in a catalytic converter.
type Metal struct {
	Name       string
	Baseline   float64 // grams for a baseline-year, baseline-size engine
	PricePerOz float64 // USD per troy ounce
}

// Metals holds the coefficients used by Estimate.
var (
	Platinum  = Metal{Name: "platinum", Baseline: 3.0, PricePerOz: 997.12}
	Palladium = Metal{Name: "palladium", Baseline: 4.0, PricePerOz: 1048.63}
	Rhodium   = Metal{Name: "rhodium", Baseline: 0.3, PricePerOz: 4750.00}
)

var (
	ErrMissingInput = errors.New("missing input")
	ErrNonNumeric   = errors.New("non-numeric input")
)

// InputError names the attribute that failed the precondition check.
type InputError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("estimate: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *InputError) Unwrap() error { return e.Wrapped }

// Options tunes the estimation formula.
type Options struct {
	// ClampYearFactor limits the age factor to [0, 1] so vehicles newer than
	// 2020 estimate to zero instead of negative grams.
	ClampYearFactor bool
}

// Input is the subset of a vehicle record the estimator reads.
type Input struct {
	Make         string
	Model        string
	Year         string
	Displacement string
}

// InputFrom extracts estimator input from a decoded vehicle.
func InputFrom(rec domain.VehicleRecord) Input {
	return Input{
		Make:         rec.Get(domain.AttrMake),
		Model:        rec.Get(domain.AttrModel),
		Year:         rec.Get(domain.AttrModelYear),
		Displacement: rec.Get(domain.AttrDisplacementL),
	}
}

// ConverterEstimate is the estimated metal content in grams, rounded to one
// decimal place, and the derived value in whole USD.
type ConverterEstimate struct {
	Platinum  float64 `json:"platinum"`
	Palladium float64 `json:"palladium"`
	Rhodium   float64 `json:"rhodium"`
	Value     int64   `json:"value"`
}

// Estimate computes the converter estimate. Make and model are not used by
// the formula. Year must be an integer and displacement a finite number,
// otherwise an *InputError is returned.
func Estimate(in Input, opts Options) (ConverterEstimate, error) {
	year, err := parseYear(in.Year)
	if err != nil {
		return ConverterEstimate{}, err
	}
	disp, err := parseDisplacement(in.Displacement)
	if err != nil {
		return ConverterEstimate{}, err
	}

	yearFactor := math.Max(0, float64(year-baselineYear)/yearSpan)
	if opts.ClampYearFactor && yearFactor > 1 {
		yearFactor = 1
	}
	sizeFactor := disp / baselineDispL

	est := ConverterEstimate{
		Platinum:  content(Platinum, sizeFactor, yearFactor),
		Palladium: content(Palladium, sizeFactor, yearFactor),
		Rhodium:   content(Rhodium, sizeFactor, yearFactor),
	}
	est.Value = Value(est)
	return est, nil
}

// Value prices the estimated grams at the embedded per-ounce snapshot.
func Value(e ConverterEstimate) int64 {
	total := e.Platinum*Platinum.PricePerOz/GramsPerTroyOunce +
		e.Palladium*Palladium.PricePerOz/GramsPerTroyOunce +
		e.Rhodium*Rhodium.PricePerOz/GramsPerTroyOunce
	return int64(jsRound(total))
}

func content(m Metal, sizeFactor, yearFactor float64) float64 {
	return jsRound(m.Baseline*sizeFactor*(1-yearFactor)*10) / 10
}

// jsRound rounds half toward +Inf, so -1.5 rounds to -1.
func jsRound(x float64) float64 {
	r := math.Floor(x + 0.5)
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// parseYear reads the leading integer of s, so "2010.0" and "2010 (est)"
// both yield 2010.
func parseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InputError{Field: domain.AttrModelYear, Wrapped: ErrMissingInput}
	}
	end := 0
	if s[0] == '+' || s[0] == '-' {
		end = 1
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	y, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, &InputError{Field: domain.AttrModelYear, Value: s, Wrapped: ErrNonNumeric}
	}
	return y, nil
}

func parseDisplacement(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InputError{Field: domain.AttrDisplacementL, Wrapped: ErrMissingInput}
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, &InputError{Field: domain.AttrDisplacementL, Value: s, Wrapped: ErrNonNumeric}
	}
	return d, nil
}
