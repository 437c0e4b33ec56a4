package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type SchemaConfig struct {
	BlindingMap string `toml:"blinding_map"`
	HVMetadata  string `toml:"hv_metadata"`
}

type CandidateConfig struct {
	SlotOne   string `toml:"slot_one"`
	SlotTwo   string `toml:"slot_two"`
	PassToken string `toml:"pass_token"`
	FailToken string `toml:"fail_token"`
}

// Rule is one classifier rule. A label matches when it contains every substring
// of at least one AnyOf entry (case-insensitive).
type Rule struct {
	Name  string     `toml:"name"`
	Kind  string     `toml:"kind"`
	AnyOf [][]string `toml:"any_of"`
}

type ClassifierConfig struct {
	Rules []Rule `toml:"rules"`
}

type BlindingConfig struct {
	GroupPrefix   string            `toml:"group_prefix"`
	WildcardScope string            `toml:"wildcard_scope"`
	NodeScopes    map[string]string `toml:"node_scopes"`
	OverrideScope string            `toml:"override_scope"`
	OverrideJobID string            `toml:"override_job_id"`
	ParsedFile    string            `toml:"parsed_file"`
	EnrichedFile  string            `toml:"enriched_file"`
	ParserName    string            `toml:"parser_name"`
	ParserVersion string            `toml:"parser_version"`
}

type ExtractionConfig struct {
	MetadataGlob      string   `toml:"metadata_glob"`
	SummaryFile       string   `toml:"summary_file"`
	ESFFile           string   `toml:"esf_file"`
	SwapFile          string   `toml:"swap_file"`
	ComparePrefix     string   `toml:"compare_prefix"`
	NodeIDs           []string `toml:"node_ids"`
	SummaryPass       string   `toml:"summary_pass"`
	SummaryFail       string   `toml:"summary_fail"`
	ESFEquivalent     string   `toml:"esf_equivalent"`
	ESFNotEquivalent  string   `toml:"esf_not_equivalent"`
	DurationTolerance float64  `toml:"duration_tolerance_seconds"`
	ArchitectNames    []string `toml:"architect_names"`
	Prefix            string   `toml:"prefix"`
	ExtractorName     string   `toml:"extractor_name"`
	ExtractorVersion  string   `toml:"extractor_version"`
}

// OverrideGroup names a (node, group) whose rows must carry the manual-override flag.
type OverrideGroup struct {
	Node  string `toml:"node"`
	Group string `toml:"group"`
}

type ExpectConfig struct {
	Rows                int             `toml:"rows"`
	RowsPerNode         int             `toml:"rows_per_node"`
	Nodes               []string        `toml:"nodes"`
	OperatorsPerCompare int             `toml:"operators_per_compare"`
	CompareFolders      []string        `toml:"compare_folders"`
	OverrideGroups      []OverrideGroup `toml:"override_groups"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ConcurrencyConfig struct {
	Extract int `toml:"extract"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Schemas     SchemaConfig      `toml:"schemas"`
	Candidates  CandidateConfig   `toml:"candidates"`
	Classifier  ClassifierConfig  `toml:"classifier"`
	Blinding    BlindingConfig    `toml:"blinding"`
	Extraction  ExtractionConfig  `toml:"extraction"`
	Expect      ExpectConfig      `toml:"expect"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
}

// Load reads a TOML file over the built-in defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return cfg, nil
}

var validKinds = map[string]bool{"TAMPER": true, "POSITIVE_CONTROL": true}

// Validate rejects settings that would make the blinding core ambiguous.
func (c *Config) Validate() error {
	if c.Candidates.SlotOne == "" || c.Candidates.SlotTwo == "" {
		return fmt.Errorf("candidates.slot_one and candidates.slot_two are required")
	}
	if c.Candidates.SlotOne == c.Candidates.SlotTwo {
		return fmt.Errorf("candidate ids must differ, both are %q", c.Candidates.SlotOne)
	}
	if c.Candidates.PassToken == "" {
		return fmt.Errorf("candidates.pass_token is required")
	}
	if len(c.Classifier.Rules) == 0 {
		return fmt.Errorf("classifier.rules must not be empty")
	}
	for i, r := range c.Classifier.Rules {
		if !validKinds[r.Kind] {
			return fmt.Errorf("classifier.rules[%d]: unknown kind %q", i, r.Kind)
		}
		if len(r.AnyOf) == 0 {
			return fmt.Errorf("classifier.rules[%d]: any_of must not be empty", i)
		}
		for j, set := range r.AnyOf {
			if len(set) == 0 {
				return fmt.Errorf("classifier.rules[%d].any_of[%d] is empty", i, j)
			}
		}
	}
	if c.Blinding.WildcardScope == "" {
		return fmt.Errorf("blinding.wildcard_scope is required")
	}
	if c.Schemas.BlindingMap == "" {
		return fmt.Errorf("schemas.blinding_map is required")
	}
	return nil
}
