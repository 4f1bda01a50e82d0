package cbc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
)

// WriteAnnotatedCSV renders the analyzed sheet that gets attached to the
// test record: canonical parameter columns in a fixed order, the
// optional columns the input carried, then the screening verdict.
func WriteAnnotatedCSV(t *Table, results []Result) ([]byte, error) {
	if len(t.Samples) != len(results) {
		return nil, fmt.Errorf("annotate: %d samples but %d results", len(t.Samples), len(results))
	}

	header := make([]string, 0, len(RequiredFeatures)+6)
	if t.HasID {
		header = append(header, "ID")
	}
	header = append(header, RequiredFeatures...)
	if t.HasRDW {
		header = append(header, "RDW")
	}
	if t.HasAge {
		header = append(header, "Age")
	}
	if t.HasSex {
		header = append(header, "Sex")
	}
	header = append(header, "Predicted_Anemia", "Diagnosis")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i, s := range t.Samples {
		row := make([]string, 0, len(header))
		if t.HasID {
			row = append(row, s.ID)
		}
		for _, f := range RequiredFeatures {
			row = append(row, formatValue(s.Value(f)))
		}
		if t.HasRDW {
			row = append(row, formatValue(s.RDW))
		}
		if t.HasAge {
			row = append(row, formatValue(s.Age))
		}
		if t.HasSex {
			row = append(row, formatValue(s.Sex))
		}

		code := "0"
		if results[i].Anemic {
			code = "1"
		}
		row = append(row, code, results[i].Diagnosis)

		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
