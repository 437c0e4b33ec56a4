package audit

import (
	"errors"
	"fmt"
	"strings"
)

type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Issue is one diagnostic produced by an extraction or verification scan.
type Issue struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Policy selects how a Collector reacts to an ERROR issue.
type Policy int

const (
	// StopAtFirst fails on the first ERROR. This is the default.
	StopAtFirst Policy = iota
	// CollectAll keeps scanning and reports every ERROR at the end.
	CollectAll
)

// ParsePolicy maps the CLI "non-strict" switch onto a Policy.
func ParsePolicy(nonStrict bool) Policy {
	if nonStrict {
		return CollectAll
	}
	return StopAtFirst
}

func (p Policy) String() string {
	if p == CollectAll {
		return "collect-all"
	}
	return "stop-at-first"
}

// IssueError wraps an ERROR issue. Its kind defaults to ErrInconsistentEvidence.
type IssueError struct {
	Issue Issue
	Kind  error
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("%s: %s :: %s", e.Issue.Code, e.Issue.Message, e.Issue.Path)
}

func (e *IssueError) Unwrap() error {
	if e.Kind == nil {
		return ErrInconsistentEvidence
	}
	return e.Kind
}

// Collector accumulates issues under a Policy.
type Collector struct {
	policy Policy
	issues []Issue
}

func NewCollector(policy Policy) *Collector {
	return &Collector{policy: policy}
}

func (c *Collector) Policy() Policy { return c.policy }

// Error records an ERROR issue. Under StopAtFirst the returned error is non-nil
// and the caller must stop; under CollectAll it is nil.
func (c *Collector) Error(code, path, format string, args ...any) error {
	return c.ErrorKind(ErrInconsistentEvidence, code, path, format, args...)
}

// ErrorKind is Error with an explicit error kind.
func (c *Collector) ErrorKind(kind error, code, path, format string, args ...any) error {
	issue := Issue{Level: LevelError, Code: code, Message: fmt.Sprintf(format, args...), Path: path}
	c.issues = append(c.issues, issue)
	if c.policy == StopAtFirst {
		return &IssueError{Issue: issue, Kind: kind}
	}
	return nil
}

func (c *Collector) Warn(code, path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Level: LevelWarn, Code: code, Message: fmt.Sprintf(format, args...), Path: path})
}

func (c *Collector) Info(code, path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Level: LevelInfo, Code: code, Message: fmt.Sprintf(format, args...), Path: path})
}

// Add replays an existing issue through the policy.
func (c *Collector) Add(issue Issue) error {
	if issue.Level == LevelError {
		return c.Error(issue.Code, issue.Path, "%s", issue.Message)
	}
	c.issues = append(c.issues, issue)
	return nil
}

func (c *Collector) Issues() []Issue {
	return append([]Issue(nil), c.issues...)
}

func (c *Collector) Errors() int   { return c.count(LevelError) }
func (c *Collector) Warnings() int { return c.count(LevelWarn) }

func (c *Collector) count(level Level) int {
	n := 0
	for _, i := range c.issues {
		if i.Level == level {
			n++
		}
	}
	return n
}

// Err summarizes every recorded ERROR, or returns nil when there are none.
func (c *Collector) Err() error {
	var errs []error
	for _, i := range c.issues {
		if i.Level == LevelError {
			errs = append(errs, &IssueError{Issue: i})
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &MultiError{Errs: errs}
}

// MultiError carries every error found by a collect-all scan.
type MultiError struct {
	Errs []error
}

func (m *MultiError) Error() string {
	lines := make([]string, 0, len(m.Errs)+1)
	lines = append(lines, fmt.Sprintf("%d errors:", len(m.Errs)))
	for _, e := range m.Errs {
		lines = append(lines, "  "+e.Error())
	}
	return strings.Join(lines, "\n")
}

func (m *MultiError) Unwrap() []error { return m.Errs }

// Join combines errors collected by a core stage. A single error is returned as-is.
func Join(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &MultiError{Errs: errs}
}

// IsAny reports whether err matches any of the audit error kinds.
func IsAny(err error) bool {
	for _, kind := range []error{
		ErrAmbiguousClassification, ErrSchemaMismatch, ErrConflictingAuthority,
		ErrUnmappedComparisonKey, ErrMalformedDocument, ErrInconsistentEvidence,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
