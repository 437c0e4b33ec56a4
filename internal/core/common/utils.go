package common

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	fencedObject = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	fencedAny    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	// flat objects only; nested fragments are not override rows
	groupFragment = regexp.MustCompile(`(?s)\{[^{}]*"group"[^{}]*\}`)
)

// ExtractJSONObject returns the JSON object embedded in a markdown document.
// A fenced ```json block wins; otherwise the span from the first '{' to the
// last '}' is used.
func ExtractJSONObject(md string) (string, error) {
	if m := fencedObject.FindStringSubmatch(md); m != nil {
		return m[1], nil
	}

	start := strings.IndexByte(md, '{')
	end := strings.LastIndexByte(md, '}')
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in markdown (missing '{')")
	}
	return md[start : end+1], nil
}

// ExtractFragments returns every flat JSON object carrying a "group" key, in
// document order. Fragments that are not valid JSON on their own are skipped,
// so the surrounding document does not need to parse as a whole. When no such
// fragment exists, the first fenced ```json block is read as a list of objects
// (a bare comma-separated fragment list is wrapped in brackets first).
func ExtractFragments(md string) ([]string, error) {
	var out []string
	for _, frag := range groupFragment.FindAllString(md, -1) {
		if gjson.Valid(frag) {
			out = append(out, frag)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	m := fencedAny.FindStringSubmatch(md)
	if m == nil {
		return nil, nil
	}
	body := strings.TrimSpace(m[1])
	if !strings.HasPrefix(body, "[") {
		body = "[" + strings.Trim(body, ",") + "]"
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("fenced fragment list is not valid JSON")
	}
	gjson.Parse(body).ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out = append(out, v.Raw)
		}
		return true
	})
	return out, nil
}
