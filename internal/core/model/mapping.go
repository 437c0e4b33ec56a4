package model

import "fmt"

// Status is the lifecycle state of a mapping row.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// Key identifies a single blinding decision: (node scope, group, arm).
type Key struct {
	NodeScope string `json:"node_scope"`
	Group     string `json:"group"`
	Arm       string `json:"arm"`
}

func (k Key) String() string {
	return fmt.Sprintf("(%s, %s, %s)", k.NodeScope, k.Group, k.Arm)
}

// Less orders keys by node scope, then group, then arm.
func (k Key) Less(o Key) bool {
	if k.NodeScope != o.NodeScope {
		return k.NodeScope < o.NodeScope
	}
	if k.Group != o.Group {
		return k.Group < o.Group
	}
	return k.Arm < o.Arm
}

// MappingRow states which candidate is the expected match for one key, and where
// that statement came from. Pending rows carry no expected candidates.
type MappingRow struct {
	NodeScope        string `json:"node_scope"`
	Group            string `json:"group"`
	Arm              string `json:"arm"`
	Status           Status `json:"status"`
	ExpectedMatch    string `json:"expected_match_candidate"`
	ExpectedMismatch string `json:"expected_mismatch_candidate"`
	Rule             string `json:"rule"`

	// Raw labels, kept for auditability.
	ReferenceSource    string `json:"A_src"`
	CandidateOneSource string `json:"QMSv5_01_src"`
	CandidateTwoSource string `json:"QMSv5_02_src"`

	JobID          string `json:"map_job_id"`
	SourceFile     string `json:"map_source_file"`
	SourceSHA256   string `json:"map_source_sha256"`
	ManualOverride bool   `json:"map_manual_override_flag"`
}

func (r MappingRow) Key() Key {
	return Key{NodeScope: r.NodeScope, Group: r.Group, Arm: r.Arm}
}

func (r MappingRow) Active() bool {
	return r.Status == StatusActive
}
