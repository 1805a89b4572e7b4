package model

import (
	"encoding/json"
	"time"
)

// OpportunityType is the category of a submitted opportunity.
type OpportunityType string

const (
	OpportunityInternship  OpportunityType = "internship"
	OpportunityFullTime    OpportunityType = "full_time"
	OpportunityResearch    OpportunityType = "research"
	OpportunityFellowship  OpportunityType = "fellowship"
	OpportunityScholarship OpportunityType = "scholarship"
)

// AllOpportunityTypes returns every known opportunity type token.
func AllOpportunityTypes() []OpportunityType {
	return []OpportunityType{
		OpportunityInternship,
		OpportunityFullTime,
		OpportunityResearch,
		OpportunityFellowship,
		OpportunityScholarship,
	}
}

// Valid reports whether t is exactly one of the known tokens.
func (t OpportunityType) Valid() bool {
	for _, known := range AllOpportunityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a stored opportunity.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusExpired
}

// DateLayout is the calendar-date form used for deadlines.
const DateLayout = "2006-01-02"

// ExtractedFields is the best-effort structured knowledge pulled from page
// content. Every field is independently nullable.
type ExtractedFields struct {
	CompanyName     *string          `json:"company_name"`
	JobTitle        *string          `json:"job_title"`
	OpportunityType *OpportunityType `json:"opportunity_type"`
	RoleType        *string          `json:"role_type"`
	RelevantMajors  []string         `json:"relevant_majors"`
	Deadline        *string          `json:"deadline"`
	Requirements    *string          `json:"requirements"`
	Location        *string          `json:"location"`
	Description     *string          `json:"description"`
}

// Opportunity is the persisted submission record: extracted fields merged
// with user overrides, plus provenance.
type Opportunity struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	CompanyName     string          `json:"company_name"`
	JobTitle        string          `json:"job_title"`
	OpportunityType OpportunityType `json:"opportunity_type"`
	RoleType        *string         `json:"role_type"`
	RelevantMajors  []string        `json:"relevant_majors"`
	Deadline        *string         `json:"deadline"`
	Requirements    *string         `json:"requirements"`
	Location        *string         `json:"location"`
	Description     *string         `json:"description"`
	Status          Status          `json:"status"`
	SubmittedBy     string          `json:"submitted_by"`
	ScrapeMethod    string          `json:"scrape_method"`
	RawExtraction   json.RawMessage `json:"raw_extraction,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DeadlineTime parses the deadline, returning false when it is unset or
// malformed.
func (o *Opportunity) DeadlineTime() (time.Time, bool) {
	if o.Deadline == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *o.Deadline)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
