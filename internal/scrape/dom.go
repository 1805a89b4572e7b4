package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// noiseSelectors are removed before any text is read.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header", "aside",
	"form", "button", "select", "textarea",
	"svg", "canvas", "iframe", "video", "audio",
	"[role='navigation']", "[role='banner']", "[role='contentinfo']",
	"[aria-hidden='true']",
	".cookie-banner", "#cookie-banner", ".cookie-consent",
}

// contentSelectors are tried in order; the first whose cleaned text reaches
// the floor wins.
var contentSelectors = []string{
	"[data-automation-id='jobPostingDescription']",
	"[class*='job-description']", "[id*='job-description']",
	"[class*='jobDescription']", "[id*='jobDescription']",
	"[class*='job-details']", "[class*='posting']",
	"[itemprop='description']",
	"[role='main']", "main", "article",
	"#content", ".content", "#main", ".main-content",
}

// blockElements get a trailing newline so paragraphs survive text joining.
const blockElements = "p, div, section, li, ul, ol, h1, h2, h3, h4, h5, h6, tr, dt, dd, blockquote, pre, table"

// Document is the text and title read from one HTML page.
type Document struct {
	Title string
	Text  string
}

// ExtractDocument parses HTML, strips noise, and returns the text of the
// first prioritized content region with at least minChars cleaned
// characters, falling back to the whole body.
func ExtractDocument(html string, minChars int) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).AppendHtml("\n")

	for _, sel := range contentSelectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		text := Clean(found.First().Text())
		if len([]rune(text)) >= minChars {
			return &Document{Title: Clean(title), Text: text}, nil
		}
	}

	return &Document{
		Title: Clean(title),
		Text:  Clean(doc.Find("body").Text()),
	}, nil
}
