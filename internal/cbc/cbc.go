// Package cbc analyzes complete blood count results. It parses result
// sheets in either orientation, maps vendor column headings onto
// canonical parameter names, screens each row for anemia against
// sex-specific hemoglobin cutoffs, and renders the advisory report and
// annotated sheet that the test views display.
package cbc

import (
	"errors"
	"math"
	"strings"
)

// RequiredFeatures lists the parameters every analyzable row must carry,
// in canonical sheet order.
var RequiredFeatures = []string{"RBC", "HGB", "PCV", "MCV", "MCH", "MCHC", "TLC", "PLT"}

var (
	ErrNoData      = errors.New("file contains no data rows")
	ErrNoValidRows = errors.New("no valid rows for analysis")
)

// MissingColumnsError reports which required parameters a sheet lacks
// after alias resolution.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// Sample is one CBC row under canonical parameter names. Optional
// parameters hold NaN when the sheet does not carry them.
type Sample struct {
	ID   string
	RBC  float64
	HGB  float64
	PCV  float64
	MCV  float64
	MCH  float64
	MCHC float64
	TLC  float64
	PLT  float64

	RDW float64
	Age float64
	Sex float64 // 0 female, 1 male
}

// NewSample builds a sample from the eight required parameters, leaving
// the optional ones absent. Manual form entry goes through here.
func NewSample(rbc, hgb, pcv, mcv, mch, mchc, tlc, plt float64) Sample {
	return Sample{
		RBC:  rbc,
		HGB:  hgb,
		PCV:  pcv,
		MCV:  mcv,
		MCH:  mch,
		MCHC: mchc,
		TLC:  tlc,
		PLT:  plt,
		RDW:  math.NaN(),
		Age:  math.NaN(),
		Sex:  math.NaN(),
	}
}

// Value returns the named canonical parameter, NaN for unknown names.
func (s Sample) Value(name string) float64 {
	switch name {
	case "RBC":
		return s.RBC
	case "HGB":
		return s.HGB
	case "PCV":
		return s.PCV
	case "MCV":
		return s.MCV
	case "MCH":
		return s.MCH
	case "MCHC":
		return s.MCHC
	case "TLC":
		return s.TLC
	case "PLT":
		return s.PLT
	case "RDW":
		return s.RDW
	case "Age":
		return s.Age
	case "Sex":
		return s.Sex
	}
	return math.NaN()
}

// Table is a parsed sheet. The presence flags record which optional
// columns the input carried so the annotated output can mirror them.
type Table struct {
	Samples []Sample
	HasID   bool
	HasRDW  bool
	HasAge  bool
	HasSex  bool

	// Skipped counts rows dropped for unparseable or absent required
	// values.
	Skipped int
}

// Result is the screening outcome for one sample.
type Result struct {
	Sample      Sample
	Anemic      bool
	Probability float64 // probability of anemia in [0,1]
	Diagnosis   string  // "Anemia" or "Normal"
}
