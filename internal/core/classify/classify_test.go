package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/hvaudit/internal/config"
)

func TestClassify(t *testing.T) {
	c := Default()

	tests := []struct {
		label string
		want  Kind
	}{
		{"QMS_CANDIDATE_WORKING_TAMPER", Tamper},
		{"qms_candidate_working_tamper", Tamper},
		{"A_TAMPER_HMAC_FLIP", Tamper},
		{"HMAC_SIGNED_PACKET", Baseline},
		{"RUN029_PC_REEXPORT", PositiveControl},
		{"NODE03_PC_PACKET_A", PositiveControl},
		{"PC_GOLDEN_packet", PositiveControl},
		{"PC_ONLY", Baseline},
		{"BASELINE_A_SRC", Baseline},
		{"", Baseline},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.label))
		})
	}
}

func TestTamperMarkerBeatsPositiveControl(t *testing.T) {
	c := Default()

	kind, rule := c.Explain("PC_REEXPORT_TAMPER_PACKET")
	assert.Equal(t, Tamper, kind)
	assert.Equal(t, "explicit tamper marker", rule)

	// Both cues still register independently.
	assert.True(t, c.Is("PC_REEXPORT_TAMPER_PACKET", PositiveControl))
	assert.True(t, c.Is("PC_REEXPORT_TAMPER_PACKET", Tamper))
}

func TestRuleOrderIsPriority(t *testing.T) {
	rules := []config.Rule{
		{Name: "pc first", Kind: "POSITIVE_CONTROL", AnyOf: [][]string{{"pc_reexport"}}},
		{Name: "tamper", Kind: "TAMPER", AnyOf: [][]string{{"tamper"}}},
	}
	c, err := NewClassifier(rules)
	require.NoError(t, err)

	assert.Equal(t, PositiveControl, c.Classify("PC_REEXPORT_TAMPER"))
	assert.Equal(t, Tamper, c.Classify("x_tamper"))
}

func TestNewClassifierRejectsBadRules(t *testing.T) {
	_, err := NewClassifier([]config.Rule{{Name: "x", Kind: "BASELINE", AnyOf: [][]string{{"A"}}}})
	assert.ErrorContains(t, err, "unknown kind")

	_, err = NewClassifier([]config.Rule{{Name: "x", Kind: "TAMPER", AnyOf: [][]string{{}}}})
	assert.ErrorContains(t, err, "empty substring set")
}

func TestKindShort(t *testing.T) {
	assert.Equal(t, "PC", PositiveControl.Short())
	assert.Equal(t, "TAMPER", Tamper.Short())
	assert.Equal(t, "BASELINE", Baseline.Short())
}
