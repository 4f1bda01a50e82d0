package cbc

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// aliases maps each canonical parameter to the headings labs commonly
// print for it. Matching ignores case, spaces and ".-_" separators.
var aliases = map[string][]string{
	"TLC":  {"tlc", "wbc", "white blood cells", "whitebloodcells", "w.b.c"},
	"PCV":  {"pcv", "hct", "hematocrit"},
	"RBC":  {"rbc", "red blood cells", "redbloodcells"},
	"HGB":  {"hgb", "hb", "hemoglobin", "haemoglobin"},
	"MCV":  {"mcv"},
	"MCH":  {"mch"},
	"MCHC": {"mchc"},
	"PLT":  {"plt", "platelets", "platelet", "platelet count"},
	"RDW":  {"rdw", "rdw-cv", "rdw_cv", "rdwcv", "rdw_sd", "rdwsd"},
	"Age":  {"age", "years", "age (y)"},
	"Sex":  {"sex", "gender", "m/f", "male/female"},
	"ID":   {"id", "sample id", "sampleid", "record id", "patient id", "no"},
}

var canonicalFor = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for canon, variants := range aliases {
		for _, v := range variants {
			idx[normKey(v)] = canon
		}
	}
	return idx
}

func normKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", ".", "", "-", "", "_", "").Replace(s)
}

// ParseCSV reads a result sheet. Sheets come in two orientations: the
// usual one-row-per-sample layout, and the Parameter/Value layout some
// analyzers export, which is transposed into a single sample. Rows
// missing any required parameter are skipped and counted.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	header := records[0]
	rows := records[1:]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	if paramIdx, valueIdx, ok := verticalLayout(header); ok {
		header, rows = transpose(rows, paramIdx, valueIdx)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	cols := make(map[string]int)
	for i, h := range header {
		canon, ok := canonicalFor[normKey(h)]
		if !ok {
			continue
		}
		if _, dup := cols[canon]; !dup {
			cols[canon] = i
		}
	}

	var missing []string
	for _, f := range RequiredFeatures {
		if _, ok := cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	t := &Table{}
	_, t.HasID = cols["ID"]
	_, t.HasRDW = cols["RDW"]
	_, t.HasAge = cols["Age"]
	_, t.HasSex = cols["Sex"]

	var sexRaw []string
	for _, row := range rows {
		s, ok := parseRow(row, cols)
		if !ok {
			t.Skipped++
			continue
		}
		t.Samples = append(t.Samples, s)
		sexRaw = append(sexRaw, cell(row, cols, "Sex"))
	}
	if len(t.Samples) == 0 {
		return nil, ErrNoValidRows
	}

	if t.HasSex {
		applySex(t.Samples, sexRaw)
	}
	return t, nil
}

func verticalLayout(header []string) (paramIdx, valueIdx int, ok bool) {
	paramIdx, valueIdx = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "parameter":
			if paramIdx == -1 {
				paramIdx = i
			}
		case "value":
			if valueIdx == -1 {
				valueIdx = i
			}
		}
	}
	return paramIdx, valueIdx, paramIdx >= 0 && valueIdx >= 0
}

// transpose turns Parameter/Value rows into a one-row horizontal sheet.
func transpose(rows [][]string, paramIdx, valueIdx int) (header []string, out [][]string) {
	var values []string
	for _, row := range rows {
		if paramIdx >= len(row) || valueIdx >= len(row) {
			continue
		}
		header = append(header, row[paramIdx])
		values = append(values, row[valueIdx])
	}
	if len(header) == 0 {
		return nil, nil
	}
	return header, [][]string{values}
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}

func parseRow(row []string, cols map[string]int) (Sample, bool) {
	s := Sample{RDW: math.NaN(), Age: math.NaN(), Sex: math.NaN()}

	required := map[string]*float64{
		"RBC": &s.RBC, "HGB": &s.HGB, "PCV": &s.PCV, "MCV": &s.MCV,
		"MCH": &s.MCH, "MCHC": &s.MCHC, "TLC": &s.TLC, "PLT": &s.PLT,
	}
	for name, dst := range required {
		v, ok := parseFloat(cell(row, cols, name))
		if !ok {
			return Sample{}, false
		}
		*dst = v
	}

	if v, ok := parseFloat(cell(row, cols, "RDW")); ok {
		s.RDW = v
	}
	if v, ok := parseFloat(cell(row, cols, "Age")); ok {
		s.Age = v
	}
	s.ID = cell(row, cols, "ID")
	return s, true
}

// applySex resolves the sex column for the whole sheet. Textual values
// map directly. An all-numeric column normally carries 0/1 coding, but a
// sheet whose distinct values are exactly 1 and 2 is shifted down one,
// matching the alternate coding some registries use.
func applySex(samples []Sample, raw []string) {
	allNumeric := true
	for _, r := range raw {
		if r == "" {
			continue
		}
		if _, err := strconv.ParseFloat(r, 64); err != nil {
			allNumeric = false
			break
		}
	}

	if !allNumeric {
		for i, r := range raw {
			samples[i].Sex = sexFromText(r)
		}
		return
	}

	distinct := make(map[float64]bool)
	values := make([]float64, len(raw))
	for i, r := range raw {
		v, ok := parseFloat(r)
		values[i] = v
		if ok {
			distinct[v] = true
		}
	}

	shift := len(distinct) == 2 && distinct[1] && distinct[2]
	for i, v := range values {
		if math.IsNaN(v) {
			samples[i].Sex = v
			continue
		}
		if shift {
			v--
		}
		samples[i].Sex = v
	}
}

func sexFromText(raw string) float64 {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "F", "FEMALE", "0":
		return 0
	case "M", "MALE", "1":
		return 1
	}
	return math.NaN()
}
