package ai

import (
	"encoding/json"
	"errors"
	"regexp"
)

// greedy: first '{' to last '}'
var jsonSpan = regexp.MustCompile(`\{[\s\S]*\}`)

var errNoJSON = errors.New("no JSON object in text")

// extractJSON decodes the outermost brace-delimited span of text.
func extractJSON(text string) (map[string]any, error) {
	span := jsonSpan.FindString(text)
	if span == "" {
		return nil, errNoJSON
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseJSON returns the JSON object embedded in text, or fallback when
// there is none or it does not parse.
func ParseJSON(text string, fallback map[string]any) map[string]any {
	v, err := extractJSON(text)
	if err != nil || v == nil {
		return fallback
	}
	return v
}
