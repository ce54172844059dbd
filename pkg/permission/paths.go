package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver canonicalizes path arguments and confines them to a set
// of allowed roots. Containment is checked against the real filesystem
// path, not the lexical one, so traversal sequences and symlinks that
// escape a root are rejected.
type PathResolver struct {
	roots []string
}

// NewPathResolver builds a resolver for the given allow roots. Roots
// are made absolute eagerly; symlinked roots are resolved at check
// time so a root created after the resolver still works.
func NewPathResolver(allowPaths []string) *PathResolver {
	roots := make([]string, 0, len(allowPaths))
	for _, r := range allowPaths {
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return &PathResolver{roots: roots}
}

// Resolve returns the absolute, symlink-resolved form of p if it lies
// under one of the allowed roots, or an error otherwise. The target
// itself need not exist yet: the deepest existing ancestor is resolved
// and the remaining lexical tail re-appended, which still defeats
// symlinked ancestors.
func (r *PathResolver) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("cannot absolutize %q: %w", p, err)
	}
	real, err := resolveExisting(abs)
	if err != nil {
		return "", err
	}
	for _, root := range r.roots {
		realRoot, err := resolveExisting(root)
		if err != nil {
			continue
		}
		if isDescendant(realRoot, real) {
			return real, nil
		}
	}
	return "", fmt.Errorf("path %q escapes all allowed roots", p)
}

// resolveExisting resolves symlinks on the deepest existing prefix of
// an absolute path and re-joins the non-existing remainder.
func resolveExisting(abs string) (string, error) {
	remainder := []string{}
	cur := filepath.Clean(abs)
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return filepath.Clean(resolved), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot resolve %q: %w", abs, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %q: no existing ancestor", abs)
		}
		remainder = append(remainder, filepath.Base(cur))
		cur = parent
	}
}

// isDescendant reports whether target equals root or lives under it.
func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
