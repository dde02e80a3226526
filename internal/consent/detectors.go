package consent

import "regexp"

// Detector counts one category of sensitive data.
type Detector struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultDetectors covers contact details, payment cards and national ids.
func DefaultDetectors() []Detector {
	return []Detector{
		{Name: "email", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{Name: "phone", Pattern: regexp.MustCompile(`\b(?:\+?\d{1,3}[\s-]?)?(?:\d{3}[\s-]?){2}\d{4}\b`)},
		{Name: "credit_card", Pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)},
		{Name: "pan", Pattern: regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
		{Name: "aadhaar", Pattern: regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
		{Name: "ssn_like", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	}
}
