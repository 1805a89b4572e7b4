// Package sitepolicy classifies target hosts as restricted (auth-walled) or
// script-heavy (client-rendered applicant tracking systems).
package sitepolicy

import (
	"fmt"
	"net/url"
	"strings"
)

// Policy is the classification of a single URL.
type Policy struct {
	Restricted  bool `json:"restricted"`
	ScriptHeavy bool `json:"script_heavy"`
}

// restrictedHosts require a signed-in session and block automation. Values
// are display names used in guidance text.
var restrictedHosts = map[string]string{
	"linkedin.com":      "LinkedIn",
	"facebook.com":      "Facebook",
	"fb.com":            "Facebook",
	"instagram.com":     "Instagram",
	"twitter.com":       "X (Twitter)",
	"x.com":             "X (Twitter)",
	"glassdoor.com":     "Glassdoor",
	"joinhandshake.com": "Handshake",
}

// scriptHeavyHosts render postings client-side.
var scriptHeavyHosts = []string{
	"greenhouse.io",
	"lever.co",
	"myworkdayjobs.com",
	"workday.com",
	"smartrecruiters.com",
	"ashbyhq.com",
	"icims.com",
	"jobvite.com",
	"bamboohr.com",
	"taleo.net",
	"successfactors.com",
	"workable.com",
}

// Classifier matches hosts against the built-in lists plus any extras.
type Classifier struct {
	restricted  map[string]string
	scriptHeavy []string
}

// NewClassifier returns a Classifier that also treats the given hosts as
// restricted or script-heavy.
func NewClassifier(extraRestricted, extraScriptHeavy []string) *Classifier {
	return newClassifier(namedHosts(extraRestricted), extraScriptHeavy)
}

func newClassifier(restricted map[string]string, scriptHeavy []string) *Classifier {
	c := &Classifier{
		restricted:  make(map[string]string, len(restrictedHosts)+len(restricted)),
		scriptHeavy: append([]string(nil), scriptHeavyHosts...),
	}
	for h, name := range restrictedHosts {
		c.restricted[h] = name
	}
	for h, name := range restricted {
		h = normalizeHost(h)
		if h == "" {
			continue
		}
		if name == "" {
			name = h
		}
		c.restricted[h] = name
	}
	for _, h := range scriptHeavy {
		h = normalizeHost(h)
		if h != "" {
			c.scriptHeavy = append(c.scriptHeavy, h)
		}
	}
	return c
}

func namedHosts(hosts []string) map[string]string {
	m := make(map[string]string, len(hosts))
	for _, h := range hosts {
		m[h] = ""
	}
	return m
}

var defaultClassifier = NewClassifier(nil, nil)

// Classify uses the built-in host lists.
func Classify(rawURL string) Policy {
	return defaultClassifier.Classify(rawURL)
}

// Guidance uses the built-in host lists.
func Guidance(rawURL string) string {
	return defaultClassifier.Guidance(rawURL)
}

// Classify never fails: malformed URLs are reported as unrestricted and left
// for URL validation to reject.
func (c *Classifier) Classify(rawURL string) Policy {
	host := hostOf(rawURL)
	if host == "" {
		return Policy{}
	}
	_, restricted := c.restrictedMatch(host)
	return Policy{
		Restricted:  restricted,
		ScriptHeavy: c.scriptHeavyMatch(host),
	}
}

// Guidance returns paste instructions for a restricted URL, or "" when the
// URL is not restricted.
func (c *Classifier) Guidance(rawURL string) string {
	name, ok := c.restrictedMatch(hostOf(rawURL))
	if !ok {
		return ""
	}
	return fmt.Sprintf(
		"%s requires you to be signed in, so the posting cannot be read automatically. "+
			"Open the posting in your browser, copy the full job description, and submit it again with the pasted text.",
		name,
	)
}

// restrictedMatch picks the most specific (longest) matching domain so
// overlapping entries resolve the same way on every call.
func (c *Classifier) restrictedMatch(host string) (string, bool) {
	if host == "" {
		return "", false
	}
	best, name := "", ""
	for h, n := range c.restricted {
		if hostMatches(host, h) && len(h) > len(best) {
			best, name = h, n
		}
	}
	return name, best != ""
}

func (c *Classifier) scriptHeavyMatch(host string) bool {
	for _, h := range c.scriptHeavy {
		if hostMatches(host, h) {
			return true
		}
	}
	return false
}

// hostMatches is true for the domain itself or any subdomain of it.
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "www.")
	return strings.TrimSuffix(h, ".")
}
