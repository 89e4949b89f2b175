// Package medlex detects medical content and protected health information
// in tabular data using keyword lexicons and regex patterns. No external
// dependencies.
package medlex

import (
	"regexp"
	"strings"
)

// Placeholder replaces redacted values.
const Placeholder = "[REDACTED]"

// medicalKeywords mark a column name or cell text as medical-domain.
var medicalKeywords = []string{
	"patient", "diagnosis", "symptom", "treatment", "medication", "drug",
	"disease", "condition", "clinical", "medical", "health", "hospital",
	"doctor", "physician", "nurse", "therapy", "procedure", "surgery",
	"lab", "test", "result", "blood", "pressure", "heart", "cancer",
	"diabetes", "infection", "pain", "fever", "chronic", "acute",
}

// phiPatterns match column names that may carry protected health
// information. Matched columns are redacted, never dropped, so table
// shape is preserved for downstream consumers.
var phiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`name`),
	regexp.MustCompile(`(^|_)id($|_)`),
	regexp.MustCompile(`ssn`),
	regexp.MustCompile(`social`),
	regexp.MustCompile(`phone`),
	regexp.MustCompile(`email`),
	regexp.MustCompile(`address`),
	regexp.MustCompile(`zip`),
	regexp.MustCompile(`postal`),
	regexp.MustCompile(`birth`),
	regexp.MustCompile(`dob`),
	regexp.MustCompile(`(^|_)age($|_)`),
	regexp.MustCompile(`mrn`),
}

// personNameRe matches "First Last" style name pairs in free text.
var personNameRe = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)

// dobRe matches common date-of-birth formats in cell values.
var dobRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)

// ContentType classifies what kind of medical data a table holds.
type ContentType string

const (
	ContentDiagnostic ContentType = "diagnostic_data"
	ContentMedication ContentType = "medication_data"
	ContentSymptom    ContentType = "symptom_data"
	ContentLaboratory ContentType = "laboratory_data"
	ContentGeneralMed ContentType = "general_medical"
	ContentGeneral    ContentType = "general_data"
)

// Detection is the outcome of scanning a table for medical content.
type Detection struct {
	IsMedical      bool
	Confidence     float64
	ContentType    ContentType
	MedicalColumns []string
}

// IsSensitiveField reports whether a column name matches the PHI lexicon.
func IsSensitiveField(column string) bool {
	lower := strings.ToLower(strings.TrimSpace(column))
	for _, re := range phiPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// LooksLikeDOB reports whether a cell value resembles a date of birth.
func LooksLikeDOB(value string) bool {
	return dobRe.MatchString(value)
}

// DetectMedicalContent scores column names and sampled cell text against
// the medical lexicon. Confidence is the matched-column fraction plus
// content hits, capped at 1.0; a table is medical above 0.3.
func DetectMedicalContent(columns []string, samples []string) Detection {
	det := Detection{ContentType: ContentGeneral}
	if len(columns) == 0 {
		return det
	}

	score := 0
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, kw := range medicalKeywords {
			if strings.Contains(lower, kw) {
				score++
				det.MedicalColumns = append(det.MedicalColumns, lower)
				break
			}
		}
	}

	for _, sample := range samples {
		lower := strings.ToLower(sample)
		for _, kw := range medicalKeywords {
			if strings.Contains(lower, kw) {
				score++
				break
			}
		}
	}

	det.Confidence = float64(score) / float64(len(columns))
	if det.Confidence > 1.0 {
		det.Confidence = 1.0
	}
	det.IsMedical = det.Confidence > 0.3

	det.ContentType = classifyContent(columns, det.IsMedical)
	return det
}

func classifyContent(columns []string, isMedical bool) ContentType {
	has := func(terms ...string) bool {
		for _, col := range columns {
			lower := strings.ToLower(col)
			for _, t := range terms {
				if strings.Contains(lower, t) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("diagnosis"):
		return ContentDiagnostic
	case has("medication", "drug"):
		return ContentMedication
	case has("symptom"):
		return ContentSymptom
	case has("lab", "test"):
		return ContentLaboratory
	case isMedical:
		return ContentGeneralMed
	default:
		return ContentGeneral
	}
}

// RedactFreeText replaces "First Last" name pairs with the placeholder.
// Applied to free-text cells of medical tables after column-level
// redaction.
func RedactFreeText(s string) string {
	return personNameRe.ReplaceAllString(s, Placeholder)
}
