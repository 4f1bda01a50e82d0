package cbc

import (
	"fmt"
	"math"
)

// Hemoglobin cutoffs in g/dL below which a sample screens as anemic.
// When sex is unknown the female bound applies, so borderline male
// samples lean toward Normal rather than a false alarm.
const (
	FemaleHGBCutoff = 12.0
	MaleHGBCutoff   = 13.0
)

// probabilitySlope shapes how quickly confidence grows with the distance
// from the cutoff. At one g/dL below the cutoff the anemia probability
// is about 0.77; at two it passes 0.9.
const probabilitySlope = 1.2

func hgbCutoff(sex float64) float64 {
	if sex == 1 {
		return MaleHGBCutoff
	}
	return FemaleHGBCutoff
}

// Classify screens one sample. The probability is a logistic function of
// how far hemoglobin sits from the sex-specific cutoff, clamped away
// from 0 and 1 so reports never claim certainty. The binary call and the
// probability agree: anemic exactly when the probability exceeds one
// half.
func Classify(s Sample) Result {
	cutoff := hgbCutoff(s.Sex)
	delta := cutoff - s.HGB

	p := 1 / (1 + math.Exp(-probabilitySlope*delta))
	if p < 0.01 {
		p = 0.01
	}
	if p > 0.99 {
		p = 0.99
	}

	anemic := s.HGB < cutoff
	diagnosis := "Normal"
	if anemic {
		diagnosis = "Anemia"
	}

	return Result{
		Sample:      s,
		Anemic:      anemic,
		Probability: p,
		Diagnosis:   diagnosis,
	}
}

// ClassifyAll screens every sample in a parsed sheet.
func ClassifyAll(t *Table) []Result {
	results := make([]Result, len(t.Samples))
	for i, s := range t.Samples {
		results[i] = Classify(s)
	}
	return results
}

// FormatProbability renders a probability for display, e.g. "87.50%".
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}

// ConfidenceLabel grades how decisive a screening was.
func ConfidenceLabel(p float64) string {
	if math.Max(p, 1-p) > 0.8 {
		return "High"
	}
	return "Medium"
}
