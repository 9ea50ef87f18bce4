package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one directory listing row.
type Entry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
}

// List returns the entries of the directory at rel, sorted by name.
func (s *Sandbox) List(rel string) ([]Entry, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		out = append(out, Entry{Name: de.Name(), Dir: de.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the contents of the file at rel.
func (s *Sandbox) Read(rel string) ([]byte, error) {
	full, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Write replaces the file at rel with content. The data goes to a temp file
// in the same directory which is then renamed over the target, so readers
// see either the old or the new content. Parent directories must exist.
func (s *Sandbox) Write(rel string, content []byte) error {
	full, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if full == s.root {
		return fmt.Errorf("cannot write to sandbox root")
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(full); err == nil {
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", rel)
		}
		mode = fi.Mode().Perm()
	}
	dir := filepath.Dir(full)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, full)
}
