package driver

// IndexQueries cover the merge keys of every provenance node label.
var IndexQueries = []string{
	"CREATE INDEX ON :SourceDocument(sha256);",
	"CREATE INDEX ON :BlindingMapping(key);",
	"CREATE INDEX ON :Comparison(hv_record_id);",
	"CREATE INDEX ON :AuditRun(run_id);",
}

const (
	SaveAuditRunQuery = `
		MERGE (r:AuditRun {run_id: $run_id})
		SET r.created_at = $created_at,
			r.parser = $parser,
			r.parser_version = $parser_version,
			r.mappings = $mappings,
			r.comparisons = $comparisons
		RETURN r.run_id AS run_id
	`

	SaveSourceDocumentQuery = `
		MERGE (d:SourceDocument {sha256: $sha256})
		SET d.path = $path,
			d.last_run_id = $run_id
		RETURN d.sha256 AS sha256
	`

	// SaveMappingsQuery asserts a batch of mapping rows from their source documents.
	SaveMappingsQuery = `
		UNWIND $mappings AS m
		MATCH (d:SourceDocument {sha256: m.source_sha256})
		MERGE (b:BlindingMapping {key: m.key})
		SET b.node_scope = m.node_scope,
			b.group = m.group,
			b.arm = m.arm,
			b.status = m.status,
			b.expected_match = m.expected_match,
			b.expected_mismatch = m.expected_mismatch,
			b.rule = m.rule,
			b.job_id = m.job_id,
			b.manual_override = m.manual_override,
			b.run_id = $run_id
		MERGE (d)-[a:ASSERTS]->(b)
		SET a.run_id = $run_id
		RETURN count(b) AS saved
	`

	// SaveComparisonsQuery links enriched records to the mapping that resolved them.
	SaveComparisonsQuery = `
		UNWIND $comparisons AS c
		MATCH (b:BlindingMapping {key: c.mapping_key})
		MERGE (n:Comparison {hv_record_id: c.hv_record_id})
		SET n.node_id = c.node_id,
			n.group = c.group,
			n.arm = c.arm,
			n.candidate_label = c.candidate_label,
			n.pass_fail = c.pass_fail,
			n.classification_correct = c.classification_correct,
			n.run_id = $run_id
		MERGE (n)-[r:RESOLVED_BY]->(b)
		SET r.run_id = $run_id
		RETURN count(n) AS saved
	`

	GetMappingProvenanceQuery = `
		MATCH (d:SourceDocument)-[:ASSERTS]->(b:BlindingMapping {key: $key})
		OPTIONAL MATCH (n:Comparison)-[:RESOLVED_BY]->(b)
		RETURN d.path AS path, d.sha256 AS sha256, b.rule AS rule, count(n) AS comparisons
	`
)
