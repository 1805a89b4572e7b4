package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseObject pulls the first JSON object out of a completion response,
// tolerating code fences and surrounding prose.
func ParseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	candidate := firstBalancedObject(text)
	if candidate == "" {
		candidate = objectRe.FindString(text)
	}
	if candidate == "" {
		return nil, eris.New("extract: no json object in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, eris.Wrap(err, "extract: decode json object")
	}
	return obj, nil
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
