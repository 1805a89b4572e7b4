package model

// Method names how page content was acquired.
type Method string

const (
	MethodStatic   Method = "static"
	MethodBrowserA Method = "browser_a"
	MethodBrowserB Method = "browser_b"
	MethodManual   Method = "manual"
)

// StrategyOrder is the fixed priority order of the automated strategies.
var StrategyOrder = []Method{MethodStatic, MethodBrowserA, MethodBrowserB}

// ScrapeAttempt records one strategy invocation within a scrape.
type ScrapeAttempt struct {
	Strategy    Method `json:"strategy"`
	Succeeded   bool   `json:"succeeded"`
	ErrorReason string `json:"error_reason,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// ScrapeResult is the outcome of one orchestrated scrape. The fallback chain
// lists every attempted strategy in order, even on total failure.
type ScrapeResult struct {
	Success       bool            `json:"success"`
	Content       string          `json:"content"`
	Title         string          `json:"title,omitempty"`
	Method        Method          `json:"method,omitempty"`
	FallbackChain []ScrapeAttempt `json:"fallback_chain"`
	Error         string          `json:"error,omitempty"`
}

// Attempted returns the strategies tried, in order.
func (r *ScrapeResult) Attempted() []Method {
	out := make([]Method, 0, len(r.FallbackChain))
	for _, a := range r.FallbackChain {
		out = append(out, a.Strategy)
	}
	return out
}
