// Package sandbox confines filesystem access to a root directory and an
// optional allow-list of sub-paths beneath it.
package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal means the requested path resolves outside the root.
	ErrPathTraversal = errors.New("path escapes sandbox root")
	// ErrNotAllowed means the path is under the root but outside every allow-list entry.
	ErrNotAllowed = errors.New("path not in allow-list")
)

// Sandbox is immutable after New.
type Sandbox struct {
	root    string
	allowed []string // absolute, cleaned
}

// New returns a Sandbox rooted at root. Allowed entries are relative to root;
// an empty list permits everything under root.
func New(root string, allowed []string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s := &Sandbox{root: abs}
	for _, a := range allowed {
		p, err := Resolve(abs, a)
		if err != nil {
			return nil, err
		}
		s.allowed = append(s.allowed, p)
	}
	return s, nil
}

// Root returns the absolute sandbox root.
func (s *Sandbox) Root() string { return s.root }

// Allowed returns the allow-list entries relative to the root.
func (s *Sandbox) Allowed() []string {
	out := make([]string, 0, len(s.allowed))
	for _, a := range s.allowed {
		rel, _ := filepath.Rel(s.root, a)
		out = append(out, rel)
	}
	return out
}

// Resolve checks rel against the root and the allow-list and returns the
// absolute path. It never touches the filesystem.
func (s *Sandbox) Resolve(rel string) (string, error) {
	full, err := Resolve(s.root, rel)
	if err != nil {
		return "", err
	}
	if len(s.allowed) == 0 {
		return full, nil
	}
	for _, a := range s.allowed {
		if within(a, full) {
			return full, nil
		}
	}
	return "", ErrNotAllowed
}

// Resolve joins rel onto root, normalizes it lexically (symlinks are not
// followed) and fails with ErrPathTraversal unless the result is root or
// nested under it. An absolute rel is taken as-is. Empty rel means ".".
func Resolve(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	root = filepath.Clean(root)
	var full string
	if filepath.IsAbs(rel) {
		full = filepath.Clean(rel)
	} else {
		full = filepath.Join(root, rel)
	}
	if !within(root, full) {
		return "", ErrPathTraversal
	}
	return full, nil
}

func within(base, p string) bool {
	if p == base {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(p, prefix)
}
