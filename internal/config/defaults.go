package config

// Default returns the HVT-A study settings.
func Default() *Config {
	return &Config{
		Schemas: SchemaConfig{
			BlindingMap: "SentinelQMSv5_BlindingMap@1.0",
			HVMetadata:  "SentinelQMSv5_HV_Metadata@1.0",
		},
		Candidates: CandidateConfig{
			SlotOne:   "QMSv5_01",
			SlotTwo:   "QMSv5_02",
			PassToken: "PASS",
			FailToken: "FAIL",
		},
		Classifier: ClassifierConfig{
			// Order is priority: the first matching rule wins, BASELINE is the fallback.
			Rules: []Rule{
				{
					Name:  "explicit tamper marker",
					Kind:  "TAMPER",
					AnyOf: [][]string{{"TAMPER"}},
				},
				{
					Name:  "positive control packet",
					Kind:  "POSITIVE_CONTROL",
					AnyOf: [][]string{{"PC_REEXPORT"}, {"_PC", "PACKET"}, {"PC_", "PACKET"}},
				},
			},
		},
		Blinding: BlindingConfig{
			GroupPrefix:   "IIIA_",
			WildcardScope: "ALL",
			NodeScopes: map[string]string{
				"StageIV_Node02": "Node02_HVT_A_COMPLETED",
				"StageIV_Node03": "Node03_HVT_A_COMPLETED",
				"StageIIIA":      "ALL",
			},
			OverrideScope: "Node03_HVT_A_COMPLETED",
			OverrideJobID: "StageIV_Node03_PC_OVERRIDE",
			ParsedFile:    "blinding_map_parsed.csv",
			EnrichedFile:  "hvtA_comparisons__WITH_BLINDING.csv",
			ParserName:    "hvaudit-blind",
			ParserVersion: "5.1.0",
		},
		Extraction: ExtractionConfig{
			MetadataGlob:      "**/HV_METADATA_QMSv5___*.json",
			SummaryFile:       "COMPARE_SUMMARY.json",
			ESFFile:           "ESF_SET_EQUIVALENCE_QMS.json",
			SwapFile:          "SWAP_CANDIDATES.ndjson",
			ComparePrefix:     "COMPARE_A_vs_",
			NodeIDs:           []string{"Node02_HVT_A_COMPLETED", "Node03_HVT_A_COMPLETED"},
			SummaryPass:       "HASH PARITY PASS",
			SummaryFail:       "HASH PARITY FAIL",
			ESFEquivalent:     "ESF SET EQUIVALENT",
			ESFNotEquivalent:  "ESF SET NOT EQUIVALENT",
			DurationTolerance: 2.0,
			ArchitectNames:    []string{"Dr. Fernando Telles", "DRTELLES-ARCHITECT"},
			Prefix:            "hvtA",
			ExtractorName:     "hvaudit-extract",
			ExtractorVersion:  "5.3.1",
		},
		Expect: ExpectConfig{
			Rows:                96,
			RowsPerNode:         48,
			Nodes:               []string{"Node02_HVT_A_COMPLETED", "Node03_HVT_A_COMPLETED"},
			OperatorsPerCompare: 2,
			CompareFolders:      []string{"COMPARE_A_vs_QMSv5_01", "COMPARE_A_vs_QMSv5_02"},
			OverrideGroups: []OverrideGroup{
				{Node: "Node03_HVT_A_COMPLETED", Group: "Positive_Controls"},
			},
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Concurrency: ConcurrencyConfig{
			Extract: 8,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
