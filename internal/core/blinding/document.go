// Package blinding loads authority documents and flattens them into mapping rows.
package blinding

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/common"
	"github.com/agenthands/hvaudit/internal/digest"
)

// Document is an authority document: the JSON object embedded in a markdown
// file, plus the file's provenance.
type Document struct {
	Path   string
	SHA256 string
	Schema string
	Root   gjson.Result
}

// FragmentSet is the list of override fragments found in one file.
type FragmentSet struct {
	Path      string
	SHA256    string
	Fragments []gjson.Result
}

func readSource(path string) (string, []byte, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to read %s: %w", abs, err)
	}
	return filepath.ToSlash(abs), data, digest.SHA256Bytes(data), nil
}

// LoadMap reads an authority document and checks its schema tag.
func LoadMap(path, schema string) (*Document, error) {
	src, data, sum, err := readSource(path)
	if err != nil {
		return nil, err
	}

	obj, err := common.ExtractJSONObject(string(data))
	if err != nil {
		return nil, audit.Malformed(src, err.Error())
	}
	if !gjson.Valid(obj) {
		return nil, audit.Malformed(src, "embedded JSON object does not parse")
	}
	root := gjson.Parse(obj)
	if !root.IsObject() {
		return nil, audit.Malformed(src, "embedded JSON is not an object")
	}

	got := root.Get("schema").String()
	if got != schema {
		return nil, audit.SchemaMismatch(src, schema, got)
	}

	jobs := root.Get("jobs")
	if jobs.Exists() && jobs.Type != gjson.Null && !jobs.IsArray() {
		return nil, audit.Malformed(src, "jobs must be list")
	}

	return &Document{Path: src, SHA256: sum, Schema: got, Root: root}, nil
}

// LoadOverrides reads every override fragment from path. A file without any
// fragment is malformed.
func LoadOverrides(path string) (*FragmentSet, error) {
	src, data, sum, err := readSource(path)
	if err != nil {
		return nil, err
	}

	raw, err := common.ExtractFragments(string(data))
	if err != nil {
		return nil, audit.Malformed(src, err.Error())
	}
	if len(raw) == 0 {
		return nil, audit.Malformed(src, "could not extract override fragments")
	}

	set := &FragmentSet{Path: src, SHA256: sum}
	for _, r := range raw {
		set.Fragments = append(set.Fragments, gjson.Parse(r))
	}
	return set, nil
}
