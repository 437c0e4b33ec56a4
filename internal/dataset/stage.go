package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/agenthands/hvaudit/internal/core/model"
)

// Stage writes a set of output files as hidden temporaries in one directory
// and renames them into place together on Commit. Until then no output name
// exists, so a failed run leaves nothing that looks like a finished dataset.
type Stage struct {
	Dir     string
	pending []stagedFile
	done    bool
}

type stagedFile struct {
	tmp   string
	final string
}

func NewStage(dir string) (*Stage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return &Stage{Dir: dir}, nil
}

// Write stages one file, filled by fn.
func (s *Stage) Write(name string, fn func(io.Writer) error) error {
	if s.done {
		return fmt.Errorf("stage already committed or discarded")
	}
	f, err := os.CreateTemp(s.Dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	s.pending = append(s.pending, stagedFile{tmp: f.Name(), final: filepath.Join(s.Dir, name)})

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	return nil
}

func (s *Stage) WriteCSV(name string, t *model.Table) error {
	return s.Write(name, func(w io.Writer) error { return EncodeCSV(w, t) })
}

// WriteNDJSON writes one JSON object per line. Map keys are sorted.
func (s *Stage) WriteNDJSON(name string, lines []map[string]any) error {
	return s.Write(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, l := range lines {
			if err := enc.Encode(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteJSON writes v indented by two spaces.
func (s *Stage) WriteJSON(name string, v any) error {
	return s.Write(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// Commit renames every staged file to its final name and returns the paths.
// If any rename fails, the files already renamed are removed again so no
// subset of the outputs is left behind.
func (s *Stage) Commit() ([]string, error) {
	if s.done {
		return nil, fmt.Errorf("stage already committed or discarded")
	}
	s.done = true
	paths := make([]string, 0, len(s.pending))
	for i, f := range s.pending {
		if err := os.Rename(f.tmp, f.final); err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
			for _, rest := range s.pending[i:] {
				os.Remove(rest.tmp)
			}
			return nil, fmt.Errorf("failed to commit %s: %w", f.final, err)
		}
		paths = append(paths, f.final)
	}
	return paths, nil
}

// Clear removes earlier outputs named names from dir. Missing files and a
// missing dir are fine.
func Clear(dir string, names ...string) error {
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear %s: %w", p, err)
		}
	}
	return nil
}

// Discard removes every staged temporary. It is a no-op after Commit.
func (s *Stage) Discard() {
	if s.done {
		return
	}
	s.done = true
	for _, f := range s.pending {
		os.Remove(f.tmp)
	}
}

// ReadNDJSONHeader parses the first line of an NDJSON log.
func ReadNDJSONHeader(path string) (gjson.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return gjson.Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !gjson.ValidBytes(line) {
		return gjson.Result{}, fmt.Errorf("first line of %s is not JSON", path)
	}
	res := gjson.ParseBytes(line)
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("first line of %s is not a JSON object", path)
	}
	return res, nil
}
