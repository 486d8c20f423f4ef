package suggestion

import (
	"encoding/json"
	"regexp"
	"strings"
)

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// Parse extracts suggestions from a model response. It accepts a JSON object
// with a suggestions array, a bare JSON array, either inside a code fence, or
// plain bullet and numbered lines. It never fails; at most max items are
// returned (max <= 0 uses the default).
func Parse(raw string, max int) []string {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	text := stripFence(strings.TrimSpace(raw))

	if items, ok := parseJSON(text); ok {
		return limit(items, max)
	}
	return limit(parseLines(text), max)
}

func stripFence(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseJSON(s string) ([]string, bool) {
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		var obj struct {
			Suggestions []string `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err == nil && obj.Suggestions != nil {
			return clean(obj.Suggestions), true
		}
	}
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		var arr []string
		if err := json.Unmarshal([]byte(s[start:end+1]), &arr); err == nil {
			return clean(arr), true
		}
	}
	return nil, false
}

func parseLines(s string) []string {
	var marked, plain []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if listMarker.MatchString(line) {
			marked = append(marked, listMarker.ReplaceAllString(line, ""))
			continue
		}
		plain = append(plain, line)
	}
	if len(marked) > 0 {
		return clean(marked)
	}
	return clean(plain)
}

func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func limit(items []string, max int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > max {
		return items[:max]
	}
	return items
}
