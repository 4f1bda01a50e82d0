package cbc

import (
	"fmt"
	"math"
	"strings"
)

// Morphology thresholds used to suggest the anemia phenotype.
const (
	microcyticMCV  = 80.0
	macrocyticMCV  = 100.0
	hypochromiaMax = 32.0 // MCHC below this supports iron deficiency
	elevatedRDW    = 14.5
)

// Phenotype suggests the anemia class from red cell indices, plus any
// supporting observations. It returns "Undetermined" when MCV is absent.
func Phenotype(s Sample) (string, []string) {
	phenotype := "Undetermined"
	var hints []string

	if !math.IsNaN(s.MCV) {
		switch {
		case s.MCV < microcyticMCV:
			phenotype = "Microcytic Anemia (often iron deficiency)"
		case s.MCV > macrocyticMCV:
			phenotype = "Macrocytic Anemia (may indicate B12/folate deficiency or other causes)"
		default:
			phenotype = "Normocytic Anemia (may be related to chronic disease/acute bleeding/kidney issues)"
		}
	}

	if !math.IsNaN(s.MCHC) && s.MCHC < hypochromiaMax {
		hints = append(hints, "Hypochromia (supports iron deficiency)")
	}
	if !math.IsNaN(s.RDW) && s.RDW > elevatedRDW {
		hints = append(hints, "Elevated RDW indicates significant variation in cell size")
	}
	return phenotype, hints
}

// BuildReport renders the advisory text shown with a screening result.
// The wording is patient-facing and deliberately ends with the
// non-diagnosis notice.
func BuildReport(r Result) string {
	if !r.Anemic {
		return "Result: Not Anemic ✅\n" +
			"Note: A healthy lifestyle, adequate hydration, and periodic CBC tests as advised by your doctor are recommended."
	}

	phenotype, hints := Phenotype(r.Sample)

	baseTests := []string{
		"Repeat CBC for confirmation",
		"Ferritin + Serum Iron + TIBC/Transferrin Saturation",
		"CRP/ESR if inflammatory/chronic disease is suspected",
	}

	var extraTests []string
	if !math.IsNaN(r.Sample.MCV) {
		switch {
		case r.Sample.MCV < microcyticMCV:
			extraTests = []string{
				"Fecal occult blood test (FOBT) based on age and symptoms",
				"Evaluate for uterine bleeding/malabsorption if needed",
			}
		case r.Sample.MCV > macrocyticMCV:
			extraTests = []string{
				"Vitamin B12 and folate levels",
				"Thyroid function tests (TSH)",
				"Liver function tests (LFTs)",
			}
		default:
			extraTests = []string{
				"Kidney function tests (Creatinine/eGFR)",
				"Screen for chronic diseases or acute bleeding",
			}
		}
	}

	lifestyle := []string{
		"Increase iron-rich foods: liver, red meat, lentils, beans, spinach",
		"Take vitamin C with meals to improve iron absorption",
		"Avoid tea and coffee immediately after iron-rich meals (preferably wait 1-2 hours)",
	}

	redFlags := []string{
		"Frequent dizziness/fainting, severe shortness of breath, chest pain",
		"Severe drop in hemoglobin",
		"Visible bleeding: bloody vomit, black stools, severe uterine bleeding",
	}

	var lines []string
	lines = append(lines, "Result: Anemia Detected 🩸")
	if !math.IsNaN(r.Sample.HGB) {
		lines = append(lines, fmt.Sprintf("Hb: %.1f g/dL", r.Sample.HGB))
	}
	if !math.IsNaN(r.Sample.MCV) {
		lines = append(lines, fmt.Sprintf("MCV: %.1f fL", r.Sample.MCV))
	}
	lines = append(lines, "Expected Classification: "+phenotype)
	if len(hints) > 0 {
		lines = append(lines, "Supporting Observations: "+strings.Join(hints, "; "))
	}

	lines = append(lines, "\n🔬 Suggested Tests (according to physician's evaluation):")
	for _, t := range append(baseTests, extraTests...) {
		lines = append(lines, "- "+t)
	}

	lines = append(lines, "\n🍽️ Lifestyle Recommendations:")
	for _, tip := range lifestyle {
		lines = append(lines, "- "+tip)
	}

	lines = append(lines, "\n🚩 Red Flags Requiring Urgent Medical Attention:")
	for _, f := range redFlags {
		lines = append(lines, "- "+f)
	}

	lines = append(lines, "\n⚠️ Important Notice: This is an automated advisory report and does not constitute a final diagnosis."+
		" All treatment decisions are the responsibility of the treating physician.")

	return strings.Join(lines, "\n")
}
