package cbc

import (
	"math"
	"testing"
)

func sampleWithHGB(hgb, sex float64) Sample {
	s := NewSample(4.5, hgb, 38, 85, 28, 33, 6.5, 260)
	s.Sex = sex
	return s
}

func TestClassifyUsesSexSpecificCutoff(t *testing.T) {
	// 12.5 g/dL is normal for a female but anemic for a male.
	female := Classify(sampleWithHGB(12.5, 0))
	if female.Anemic {
		t.Error("12.5 g/dL female should screen Normal")
	}
	male := Classify(sampleWithHGB(12.5, 1))
	if !male.Anemic {
		t.Error("12.5 g/dL male should screen Anemia")
	}
}

func TestClassifyUnknownSexUsesFemaleCutoff(t *testing.T) {
	r := Classify(sampleWithHGB(12.5, math.NaN()))
	if r.Anemic {
		t.Error("unknown sex should apply the lower female cutoff")
	}
	r = Classify(sampleWithHGB(11.9, math.NaN()))
	if !r.Anemic {
		t.Error("11.9 g/dL below the female cutoff should screen Anemia")
	}
}

func TestClassifyCutoffBoundary(t *testing.T) {
	r := Classify(sampleWithHGB(FemaleHGBCutoff, 0))
	if r.Anemic {
		t.Error("hemoglobin exactly at the cutoff should screen Normal")
	}
	if r.Probability != 0.5 {
		t.Errorf("probability at the cutoff should be 0.5, got %v", r.Probability)
	}
	if r.Diagnosis != "Normal" {
		t.Errorf("diagnosis = %s", r.Diagnosis)
	}
}

func TestClassifyProbabilityMonotonic(t *testing.T) {
	prev := -1.0
	for _, hgb := range []float64{15, 13, 12, 11, 9, 7} {
		p := Classify(sampleWithHGB(hgb, 0)).Probability
		if p <= prev {
			t.Errorf("probability should rise as hemoglobin falls: hgb=%v p=%v prev=%v", hgb, p, prev)
		}
		prev = p
	}
}

func TestClassifyVerdictMatchesProbability(t *testing.T) {
	for _, hgb := range []float64{6, 9, 11.9, 12, 12.1, 14, 17} {
		r := Classify(sampleWithHGB(hgb, 0))
		if r.Anemic != (r.Probability > 0.5) {
			t.Errorf("hgb=%v: verdict %v disagrees with probability %v", hgb, r.Anemic, r.Probability)
		}
	}
}

func TestClassifyProbabilityClamped(t *testing.T) {
	low := Classify(sampleWithHGB(2, 0))
	if low.Probability > 0.99 {
		t.Errorf("probability should clamp at 0.99, got %v", low.Probability)
	}
	high := Classify(sampleWithHGB(20, 0))
	if high.Probability < 0.01 {
		t.Errorf("probability should clamp at 0.01, got %v", high.Probability)
	}
}

func TestClassifySeverelyLowHemoglobin(t *testing.T) {
	r := Classify(sampleWithHGB(7.5, 0))
	if !r.Anemic || r.Diagnosis != "Anemia" {
		t.Fatalf("7.5 g/dL should screen Anemia, got %+v", r)
	}
	if r.Probability < 0.9 {
		t.Errorf("expected high confidence, got %v", r.Probability)
	}
}

func TestClassifyAll(t *testing.T) {
	table := &Table{Samples: []Sample{
		sampleWithHGB(9.5, 0),
		sampleWithHGB(14.5, 1),
	}}

	results := ClassifyAll(table)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Anemic || results[1].Anemic {
		t.Errorf("unexpected verdicts: %v, %v", results[0].Anemic, results[1].Anemic)
	}
}

func TestFormatProbability(t *testing.T) {
	cases := []struct {
		p    float64
		want string
	}{
		{0.875, "87.50%"},
		{0.5, "50.00%"},
		{0.01, "1.00%"},
		{0.99, "99.00%"},
	}
	for _, tc := range cases {
		if got := FormatProbability(tc.p); got != tc.want {
			t.Errorf("FormatProbability(%v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

func TestConfidenceLabel(t *testing.T) {
	if ConfidenceLabel(0.95) != "High" {
		t.Error("0.95 should grade High")
	}
	if ConfidenceLabel(0.05) != "High" {
		t.Error("0.05 should grade High: the screening is decisive either way")
	}
	if ConfidenceLabel(0.6) != "Medium" {
		t.Error("0.6 should grade Medium")
	}
}
