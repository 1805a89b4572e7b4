// Package store persists submitted opportunities.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-intake/internal/model"
)

var (
	// ErrDuplicate is returned by InsertOpportunity when the URL is already
	// stored.
	ErrDuplicate = eris.New("store: duplicate url")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = eris.New("store: not found")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OpportunityFilter specifies criteria for listing opportunities.
type OpportunityFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

func (f OpportunityFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

func (f OpportunityFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// Store defines the persistence interface for submitted opportunities.
type Store interface {
	// GetOpportunityByURL returns (nil, nil) when no record has url.
	GetOpportunityByURL(ctx context.Context, url string) (*model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	// InsertOpportunity fills ID and timestamps when unset.
	InsertOpportunity(ctx context.Context, o *model.Opportunity) error
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
	// ExpirePastDeadline marks active records whose deadline is before today
	// as expired and returns how many changed.
	ExpirePastDeadline(ctx context.Context, today time.Time) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOpportunity reads one row in the column order both backends select.
func scanOpportunity(row rowScanner) (*model.Opportunity, error) {
	var (
		o       model.Opportunity
		oppType string
		status  string
		majors  []byte
		raw     []byte
	)
	err := row.Scan(
		&o.ID, &o.URL, &o.CompanyName, &o.JobTitle, &oppType,
		&o.RoleType, &majors, &o.Deadline, &o.Requirements, &o.Location,
		&o.Description, &status, &o.SubmittedBy, &o.ScrapeMethod, &raw,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.OpportunityType = model.OpportunityType(oppType)
	o.Status = model.Status(status)
	if len(majors) > 0 {
		if err := json.Unmarshal(majors, &o.RelevantMajors); err != nil {
			return nil, eris.Wrap(err, "store: decode relevant_majors")
		}
	}
	if len(raw) > 0 {
		o.RawExtraction = json.RawMessage(raw)
	}
	return &o, nil
}

// prepareInsert fills defaults and encodes the JSON columns.
func prepareInsert(o *model.Opportunity, newID func() string, now time.Time) (majors, raw []byte, err error) {
	if o.ID == "" {
		o.ID = newID()
	}
	if o.Status == "" {
		o.Status = model.StatusActive
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.RelevantMajors != nil {
		majors, err = json.Marshal(o.RelevantMajors)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: encode relevant_majors")
		}
	}
	if len(o.RawExtraction) > 0 {
		raw = []byte(o.RawExtraction)
	}
	return majors, raw, nil
}
