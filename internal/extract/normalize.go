package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/sells-group/opportunity-intake/internal/model"
)

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	bareNumRe = regexp.MustCompile(`^\d+$`)
)

// Deadlines outside this year range are treated as unparseable. A
// month-and-day string with no year parses to year 0.
const (
	minDeadlineYear = 1900
	maxDeadlineYear = 2200
)

// Normalize turns an untrusted decoded object into typed fields. Each field
// is normalized on its own; a missing or malformed field becomes nil and
// never affects the others.
func Normalize(raw map[string]any) model.ExtractedFields {
	return model.ExtractedFields{
		CompanyName:     normalizeString(raw["company_name"]),
		JobTitle:        normalizeString(raw["job_title"]),
		OpportunityType: normalizeOpportunityType(raw["opportunity_type"]),
		RoleType:        normalizeString(raw["role_type"]),
		RelevantMajors:  normalizeStringList(raw["relevant_majors"]),
		Deadline:        normalizeDate(raw["deadline"]),
		Requirements:    normalizeString(raw["requirements"]),
		Location:        normalizeString(raw["location"]),
		Description:     normalizeString(raw["description"]),
	}
}

func normalizeString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := normalizeString(item); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// normalizeOpportunityType accepts only an exact, already-lowercase token.
// "Internship" is rejected rather than folded.
func normalizeOpportunityType(v any) *model.OpportunityType {
	s := normalizeString(v)
	if s == nil || *s != strings.ToLower(*s) {
		return nil
	}
	ot := model.OpportunityType(*s)
	if !ot.Valid() {
		return nil
	}
	return &ot
}

// normalizeDate returns a YYYY-MM-DD string or nil. It never fails.
func normalizeDate(v any) *string {
	s := normalizeString(v)
	if s == nil {
		return nil
	}
	if isoDateRe.MatchString(*s) {
		t, err := time.Parse(model.DateLayout, *s)
		if err != nil || !plausibleYear(t) {
			return nil
		}
		return s
	}
	if bareNumRe.MatchString(*s) {
		return nil
	}
	t, err := dateparse.ParseIn(*s, time.UTC)
	if err != nil || !plausibleYear(t) {
		return nil
	}
	out := t.Format(model.DateLayout)
	return &out
}

func plausibleYear(t time.Time) bool {
	return t.Year() >= minDeadlineYear && t.Year() <= maxDeadlineYear
}
