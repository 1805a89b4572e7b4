// Package submission runs one opportunity submission end to end: validate,
// dedup, acquire content, extract, merge and store.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/extract"
	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/store"
)

// Defaults applied when neither the user nor extraction supplied a value.
const (
	DefaultCompanyName     = "Unknown Company"
	DefaultJobTitle        = "Position Not Specified"
	DefaultOpportunityType = model.OpportunityInternship
)

// Request is one user submission.
type Request struct {
	URL             string `json:"url"`
	CompanyName     string `json:"company_name,omitempty"`
	OpportunityType string `json:"opportunity_type,omitempty"`
	ManualContent   string `json:"manual_content,omitempty"`
	SubmittedBy     string `json:"submitted_by,omitempty"`
}

// Scraper acquires page content. *gateway.Gateway satisfies it.
type Scraper interface {
	SmartScrape(ctx context.Context, req gateway.Request) *gateway.Result
}

// Extractor turns page content into fields. *extract.Client satisfies it.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input, opts extract.Options) (*extract.Result, error)
}

// Repository is the slice of store.Store the coordinator needs.
type Repository interface {
	GetOpportunityByURL(ctx context.Context, url string) (*model.Opportunity, error)
	InsertOpportunity(ctx context.Context, o *model.Opportunity) error
}

// Config tunes a Coordinator.
type Config struct {
	// Timeout bounds a whole submission. Zero means no extra deadline.
	Timeout time.Duration
	// ScrapeTimeout bounds the automated scrape. Zero uses the gateway default.
	ScrapeTimeout time.Duration
	Extract       extract.Options
}

// Coordinator sequences the submission steps.
type Coordinator struct {
	scraper   Scraper
	extractor Extractor
	repo      Repository
	cfg       Config
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(scraper Scraper, extractor Extractor, repo Repository, cfg Config) *Coordinator {
	return &Coordinator{scraper: scraper, extractor: extractor, repo: repo, cfg: cfg}
}

// Submit validates, deduplicates, scrapes, extracts and stores a submission.
// Every failure is an *apperr.Error with a user-facing message.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*model.Opportunity, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	rawURL, err := ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}
	userType, err := validateType(req.OpportunityType)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("url", rawURL))
	start := time.Now()

	existing, err := c.repo.GetOpportunityByURL(ctx, rawURL)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUnknown, "could not check for an existing submission")
	}
	if existing != nil {
		log.Info("submission: duplicate url", zap.String("existing_id", existing.ID))
		return nil, duplicateError(existing, nil)
	}

	sr := c.scraper.SmartScrape(ctx, gateway.Request{
		URL:           rawURL,
		ManualContent: req.ManualContent,
		Timeout:       c.cfg.ScrapeTimeout,
	})
	if !sr.Success {
		log.Info("submission: scrape failed",
			zap.Bool("restricted", sr.Restricted),
			zap.String("error", sr.Error),
		)
		e := apperr.New(apperr.KindScrapeFailed, sr.Error)
		e.RequiresManual = sr.RequiresManual
		e.Guidance = sr.Guidance
		return nil, e
	}
	log.Info("submission: content acquired",
		zap.String("method", string(sr.Method)),
		zap.String("strategy", string(sr.Strategy)),
		zap.Int("chars", len(sr.Content)),
	)

	ext, err := c.extractor.Extract(ctx, extract.Input{URL: rawURL, Content: sr.Content}, c.cfg.Extract)
	if err != nil {
		if apperr.Is(err, apperr.KindRateLimited) {
			return nil, err
		}
		log.Warn("submission: extraction failed", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		return nil, apperr.Wrap(err, apperr.KindExtractionFailed,
			"could not read the posting details; try again or paste the posting text")
	}

	o := Merge(ext.Fields, req.CompanyName, userType)
	o.URL = rawURL
	o.SubmittedBy = strings.TrimSpace(req.SubmittedBy)
	o.ScrapeMethod = string(sr.Strategy)
	if raw, merr := json.Marshal(ext.Fields); merr == nil {
		o.RawExtraction = raw
	} else {
		log.Warn("submission: encode raw extraction", zap.Error(merr))
	}

	if err := c.repo.InsertOpportunity(ctx, o); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Info("submission: duplicate on insert")
			winner, _ := c.repo.GetOpportunityByURL(ctx, rawURL)
			return nil, duplicateError(winner, err)
		}
		return nil, apperr.Wrap(err, apperr.KindUnknown, "could not save the submission")
	}

	log.Info("submission: stored",
		zap.String("id", o.ID),
		zap.String("company", o.CompanyName),
		zap.Int("extract_attempts", ext.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return o, nil
}

// Merge combines extracted fields with user overrides and fills defaults.
// A non-empty user company name or type always wins.
func Merge(f model.ExtractedFields, userCompany string, userType model.OpportunityType) *model.Opportunity {
	o := &model.Opportunity{
		CompanyName:     DefaultCompanyName,
		JobTitle:        DefaultJobTitle,
		OpportunityType: DefaultOpportunityType,
		RoleType:        f.RoleType,
		RelevantMajors:  f.RelevantMajors,
		Deadline:        f.Deadline,
		Requirements:    f.Requirements,
		Location:        f.Location,
		Description:     f.Description,
		Status:          model.StatusActive,
	}
	switch {
	case strings.TrimSpace(userCompany) != "":
		o.CompanyName = strings.TrimSpace(userCompany)
	case f.CompanyName != nil:
		o.CompanyName = *f.CompanyName
	}
	if f.JobTitle != nil {
		o.JobTitle = *f.JobTitle
	}
	switch {
	case userType != "":
		o.OpportunityType = userType
	case f.OpportunityType != nil:
		o.OpportunityType = *f.OpportunityType
	}
	return o
}

// ValidateURL accepts absolute http(s) URLs with a host and returns the
// trimmed form.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.KindInvalidURL, "a posting URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperr.Wrap(eris.Wrap(err, "submission: parse url"), apperr.KindInvalidURL, "the URL is not valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperr.New(apperr.KindInvalidURL, "the URL must start with http:// or https://")
	}
	if u.Hostname() == "" {
		return "", apperr.New(apperr.KindInvalidURL, "the URL has no host")
	}
	return raw, nil
}

func validateType(raw string) (model.OpportunityType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	t := model.OpportunityType(raw)
	if !t.Valid() {
		return "", apperr.New(apperr.KindInvalidContent,
			"opportunity type must be one of internship, full_time, research, fellowship, scholarship")
	}
	return t, nil
}

func duplicateError(existing *model.Opportunity, cause error) *apperr.Error {
	e := apperr.New(apperr.KindDuplicate, "this opportunity has already been submitted")
	if cause != nil {
		e = apperr.Wrap(cause, apperr.KindDuplicate, "this opportunity has already been submitted")
	}
	if existing != nil {
		e.Conflict = &apperr.Conflict{
			ID:          existing.ID,
			URL:         existing.URL,
			CompanyName: existing.CompanyName,
			JobTitle:    existing.JobTitle,
		}
	}
	return e
}
