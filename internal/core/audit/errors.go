// Package audit holds the error kinds every stage reports and the policy that
// decides whether a scan stops at the first problem or enumerates all of them.
package audit

import "errors"

// Error kinds. Every one of them is fatal for the stage that raises it.
var (
	ErrAmbiguousClassification = errors.New("ambiguous classification")
	ErrSchemaMismatch          = errors.New("schema mismatch")
	ErrConflictingAuthority    = errors.New("conflicting authority")
	ErrUnmappedComparisonKey   = errors.New("unmapped comparison key")
	ErrMalformedDocument       = errors.New("malformed document")
	ErrInconsistentEvidence    = errors.New("inconsistent evidence")
)

// DocumentError reports a problem with one input document.
type DocumentError struct {
	Kind   error
	Path   string
	Detail string
}

func (e *DocumentError) Error() string {
	return e.Kind.Error() + ": " + e.Detail + " :: " + e.Path
}

func (e *DocumentError) Unwrap() error { return e.Kind }

// Malformed builds a DocumentError of kind ErrMalformedDocument.
func Malformed(path, detail string) error {
	return &DocumentError{Kind: ErrMalformedDocument, Path: path, Detail: detail}
}

// SchemaMismatch builds a DocumentError of kind ErrSchemaMismatch.
func SchemaMismatch(path, want, got string) error {
	return &DocumentError{
		Kind:   ErrSchemaMismatch,
		Path:   path,
		Detail: "expected schema " + want + ", got " + quoteOrEmpty(got),
	}
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "<empty>"
	}
	return `"` + s + `"`
}
