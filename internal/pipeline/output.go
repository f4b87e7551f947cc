package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// OutputSet writes a group of files all-or-nothing. Each file is first
// written to a temporary file next to its target; Commit renames them into
// place and, if any step fails, removes every file it wrote.
type OutputSet struct {
	pending   []pendingFile
	committed []string
	done      bool
}

type pendingFile struct {
	target string
	tmp    string
}

// Add stages data for path.
func (o *OutputSet) Add(path string, data []byte) error {
	if o.done {
		return errors.New("output set already committed")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage %q: %w", path, err)
	}
	o.pending = append(o.pending, pendingFile{target: path, tmp: f.Name()})
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

// Commit renames every staged file into place. On failure nothing staged by
// this set is left behind.
func (o *OutputSet) Commit() ([]string, error) {
	if o.done {
		return nil, errors.New("output set already committed")
	}
	o.done = true
	for _, p := range o.pending {
		// #nosec G302 -- outputs are regular, user-readable files
		if err := os.Chmod(p.tmp, 0o644); err != nil {
			o.rollback()
			return nil, fmt.Errorf("failed to write %q: %w", p.target, err)
		}
		if err := os.Rename(p.tmp, p.target); err != nil {
			o.rollback()
			return nil, fmt.Errorf("failed to write %q: %w", p.target, err)
		}
		o.committed = append(o.committed, p.target)
	}
	o.pending = nil
	return o.committed, nil
}

// Abort removes every staged file. It is a no-op after a successful Commit.
func (o *OutputSet) Abort() {
	if o.done && o.pending == nil {
		return
	}
	o.done = true
	o.rollback()
}

func (o *OutputSet) rollback() {
	for _, p := range o.pending {
		_ = os.Remove(p.tmp)
	}
	for _, name := range o.committed {
		_ = os.Remove(name)
	}
	o.pending = nil
	o.committed = nil
}
