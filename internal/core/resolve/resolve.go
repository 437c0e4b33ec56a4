// Package resolve decides which of two candidates is the expected match for a
// reference packet.
package resolve

import (
	"fmt"
	"strings"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/classify"
)

// Resolution is the outcome for one arm.
type Resolution struct {
	ExpectedMatch    string        `json:"expected_match_candidate"`
	ExpectedMismatch string        `json:"expected_mismatch_candidate"`
	Rule             string        `json:"rule"`
	ReferenceKind    classify.Kind `json:"reference_kind"`
}

// Reasons reported by AmbiguityError.
const (
	ReasonMissingLabel       = "Missing A_src or candidate src"
	ReasonTamperNotUnique    = "Ambiguous: A is TAMPER but candidates not uniquely tamper"
	ReasonPCNotUnique        = "Ambiguous: A is PC but candidates not uniquely PC or tamper-distinguishable"
	ReasonBaselineNoTamper   = "Ambiguous: BASELINE arm but neither candidate looks tamper"
	ReasonBaselineBothTamper = "Ambiguous: BASELINE arm but both candidates look tamper"
)

// AmbiguityError names the arm and all three raw labels, so the failing entry
// can be found in the authority document from the message alone.
type AmbiguityError struct {
	Reason string

	JobID     string
	NodeScope string
	Group     string
	Arm       string

	Reference    string
	CandidateOne string
	CandidateTwo string

	// Slot ids used as field names in the message.
	SlotOne string
	SlotTwo string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%s :: job_id=%s node_scope=%s group=%s arm=%s A_src=%s %s_src=%s %s_src=%s",
		e.Reason, e.JobID, e.NodeScope, e.Group, e.Arm,
		e.Reference, e.SlotOne, e.CandidateOne, e.SlotTwo, e.CandidateTwo)
}

func (e *AmbiguityError) Unwrap() error { return audit.ErrAmbiguousClassification }

// Within attaches the arm's location.
func (e *AmbiguityError) Within(jobID, nodeScope, group, arm string) *AmbiguityError {
	e.JobID, e.NodeScope, e.Group, e.Arm = jobID, nodeScope, group, arm
	return e
}

type Resolver struct {
	Classifier *classify.Classifier
	SlotOne    string
	SlotTwo    string
}

func NewResolver(c *classify.Classifier, slotOne, slotTwo string) *Resolver {
	return &Resolver{Classifier: c, SlotOne: slotOne, SlotTwo: slotTwo}
}

// Resolve applies the decision table for the reference's kind:
//
//	TAMPER    match is the only tamper candidate
//	PC        match is the only PC candidate, else the only non-tamper one
//	BASELINE  match is the only non-tamper candidate
//
// Anything else is an *AmbiguityError.
func (r *Resolver) Resolve(reference, candidateOne, candidateTwo string) (Resolution, error) {
	ref := strings.TrimSpace(reference)
	one := strings.TrimSpace(candidateOne)
	two := strings.TrimSpace(candidateTwo)

	fail := func(reason string) (Resolution, error) {
		return Resolution{}, &AmbiguityError{
			Reason:       reason,
			Reference:    reference,
			CandidateOne: candidateOne,
			CandidateTwo: candidateTwo,
			SlotOne:      r.SlotOne,
			SlotTwo:      r.SlotTwo,
		}
	}
	if ref == "" || one == "" || two == "" {
		return fail(ReasonMissingLabel)
	}

	kind := r.Classifier.Classify(ref)
	oneT, twoT := r.Classifier.Is(one, classify.Tamper), r.Classifier.Is(two, classify.Tamper)
	onePC, twoPC := r.Classifier.Is(one, classify.PositiveControl), r.Classifier.Is(two, classify.PositiveControl)

	pick := func(firstMatches bool, rule string) (Resolution, error) {
		res := Resolution{Rule: "A=" + kind.Short() + " -> " + rule, ReferenceKind: kind}
		if firstMatches {
			res.ExpectedMatch, res.ExpectedMismatch = r.SlotOne, r.SlotTwo
		} else {
			res.ExpectedMatch, res.ExpectedMismatch = r.SlotTwo, r.SlotOne
		}
		return res, nil
	}

	switch kind {
	case classify.Tamper:
		if oneT != twoT {
			return pick(oneT, "match=tamper")
		}
		return fail(ReasonTamperNotUnique)

	case classify.PositiveControl:
		if onePC != twoPC {
			return pick(onePC, "match=pc")
		}
		if oneT != twoT {
			return pick(twoT, "match=non-tamper fallback")
		}
		return fail(ReasonPCNotUnique)

	default:
		if oneT != twoT {
			return pick(twoT, "match=non-tamper")
		}
		if oneT {
			return fail(ReasonBaselineBothTamper)
		}
		return fail(ReasonBaselineNoTamper)
	}
}
