// Package consistency recomputes facts that independent evidence sources must
// agree on: durations, summary verdicts, sidecar hash emptiness, ESF results.
package consistency

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agenthands/hvaudit/internal/core/audit"
)

// Problem is one disagreement. Callers attach the path and report it through
// an audit.Collector.
type Problem struct {
	Code    string
	Message string
}

// Report records every problem as an ERROR and returns the first stop error.
func Report(c *audit.Collector, path string, problems []Problem) error {
	for _, p := range problems {
		if err := c.Error(p.Code, path, "%s", p.Message); err != nil {
			return err
		}
	}
	return nil
}

var utcLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseUTC parses an ISO-8601 timestamp. Timestamps without an offset are UTC.
func ParseUTC(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range utcLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Duration compares a declared duration against end-start. A timestamp that
// does not parse is reported as HV_TIME_PARSE_FAIL.
func Duration(start, end string, declared, tolerance float64) (float64, []Problem) {
	ts, okS := ParseUTC(start)
	te, okE := ParseUTC(end)
	if !okS || !okE {
		return 0, []Problem{{"HV_TIME_PARSE_FAIL", "hv_start_utc or hv_end_utc not parseable ISO8601 UTC"}}
	}
	computed := te.Sub(ts).Seconds()
	if math.Abs(computed-declared) > tolerance {
		return computed, []Problem{{
			"DURATION_MISMATCH",
			fmt.Sprintf("hv_duration_seconds=%s computed=%.3f", formatFloat(declared), computed),
		}}
	}
	return computed, nil
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprintf("%g", f)
}

type Verdict string

const (
	Pass    Verdict = "PASS"
	Fail    Verdict = "FAIL"
	Unknown Verdict = "UNKNOWN"
)

// Tokens are the summary result strings that map onto PASS and FAIL.
type Tokens struct {
	Pass string
	Fail string
}

// Summary is a parsed COMPARE_SUMMARY.json.
type Summary struct {
	Root    gjson.Result
	Result  string
	Verdict Verdict

	MissingCount int64
	ExtrasCount  int64
	CountsTyped  bool

	FingerprintMatch bool
	MatchTyped       bool
}

// ParseSummary reads a summary document. Only invalid JSON is an error; type
// problems are reported by Problems.
func ParseSummary(data []byte, tokens Tokens) (*Summary, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	s := &Summary{Root: root, Result: root.Get("result").String(), Verdict: Unknown}
	switch s.Result {
	case tokens.Pass:
		s.Verdict = Pass
	case tokens.Fail:
		s.Verdict = Fail
	}

	missing, okM := Integer(root.Get("counts.missing_count"))
	extras, okE := Integer(root.Get("counts.extras_count"))
	s.MissingCount, s.ExtrasCount, s.CountsTyped = missing, extras, okM && okE

	match := root.Get("fingerprints.match")
	s.MatchTyped = match.IsBool()
	s.FingerprintMatch = match.Type == gjson.True
	return s, nil
}

// Integer accepts JSON integers only; 1.0 and "1" are rejected.
func Integer(v gjson.Result) (int64, bool) {
	if v.Type != gjson.Number || strings.ContainsAny(v.Raw, ".eE") {
		return 0, false
	}
	return v.Int(), true
}

// PassCriteria holds when nothing is missing, nothing is extra, and the
// fingerprints match.
func (s *Summary) PassCriteria() bool {
	return s.CountsTyped && s.MatchTyped &&
		s.MissingCount == 0 && s.ExtrasCount == 0 && s.FingerprintMatch
}

// Problems checks the summary's own typing and its verdict against the counts.
func (s *Summary) Problems() []Problem {
	var out []Problem
	if s.Verdict == Unknown {
		out = append(out, Problem{"SUMMARY_RESULT_UNEXPECTED", fmt.Sprintf("Unexpected summary result: '%s'", s.Result)})
	}
	if !s.CountsTyped {
		out = append(out, Problem{"SUMMARY_COUNTS_TYPE", "missing_count/extras_count must be int in COMPARE_SUMMARY.json"})
	}
	if !s.MatchTyped {
		out = append(out, Problem{"SUMMARY_FINGERPRINT_MATCH_TYPE", "fingerprints.match must be boolean in COMPARE_SUMMARY.json"})
	}
	switch {
	case s.Verdict == Pass && !s.PassCriteria():
		out = append(out, Problem{"SUMMARY_COUNTS_INCONSISTENT", "SUMMARY says PASS but counts/fingerprint do not satisfy PASS criteria"})
	case s.Verdict == Fail && s.PassCriteria():
		out = append(out, Problem{"SUMMARY_COUNTS_INCONSISTENT", "SUMMARY says FAIL but counts/fingerprint satisfy PASS criteria"})
	}
	return out
}

// EmptyHash checks the MISSING/EXTRAS sidecar digests against the verdict: a
// PASS must have both empty, a FAIL must not.
func EmptyHash(v Verdict, missingEmpty, extrasEmpty bool) []Problem {
	both := missingEmpty && extrasEmpty
	switch {
	case v == Pass && !both:
		return []Problem{{"EMPTY_HASH_INCONSISTENT", "SUMMARY says PASS but missing/extras hashes are not empty-hash"}}
	case v == Fail && both:
		return []Problem{{"EMPTY_HASH_INCONSISTENT", "SUMMARY says FAIL but missing/extras hashes are empty-hash"}}
	}
	return nil
}

// ESF maps an ESF equivalence result onto a match flag (1, 0, or -1 for an
// unexpected result) and checks it does not contradict the verdict.
func ESF(v Verdict, result, equivalent, notEquivalent string) (int, []Problem) {
	var out []Problem
	match := -1
	switch result {
	case equivalent:
		match = 1
	case notEquivalent:
		match = 0
	default:
		out = append(out, Problem{"ESF_RESULT_UNEXPECTED", fmt.Sprintf("Unexpected ESF result: '%s'", result)})
	}
	if v == Pass && match != 1 {
		out = append(out, Problem{"ESF_INCONSISTENT", "PASS but ESF SET NOT EQUIVALENT"})
	}
	if v == Fail && match != 0 {
		out = append(out, Problem{"ESF_INCONSISTENT", "FAIL but ESF SET EQUIVALENT"})
	}
	return match, out
}
