package ops

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/errors"
)

// csvExt is the only extension accepted for import and export files.
const csvExt = ".csv"

// Access says whether a checked path will be read (import) or written (export).
type Access int

const (
	ReadAccess Access = iota
	WriteAccess
)

// PathPolicy decides which CSV paths import and export may touch.
//
// A file must sit directly in the exports dir or one of allowed_paths, so
// the only component left to race is the file itself, and that is opened
// with O_NOFOLLOW. allow_unsafe_paths lifts the directory rule only.
type PathPolicy struct {
	dirs         []string
	unrestricted bool
}

// NewPathPolicy resolves the allowed directories from cfg. A nil cfg allows
// only ~/.skumate/exports.
func NewPathPolicy(cfg *config.Config) (*PathPolicy, error) {
	p := &PathPolicy{}
	if cfg != nil && cfg.AllowUnsafePaths {
		p.unrestricted = true
		return p, nil
	}

	exportsDir, err := ExportsDir(cfg)
	if err != nil {
		return nil, err
	}
	candidates := []string{exportsDir}
	if cfg != nil {
		for _, d := range cfg.AllowedPaths {
			// Relative entries would depend on the working directory.
			if filepath.IsAbs(d) {
				candidates = append(candidates, d)
			}
		}
	}

	for _, d := range candidates {
		dir, err := resolveDir(d)
		if err != nil {
			return nil, err
		}
		p.dirs = append(p.dirs, dir)
	}
	return p, nil
}

// resolveDir cleans d and follows it if it is itself a symlink, so an
// allowed entry matches its real location.
func resolveDir(d string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(d))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path %q: %v", d, err))
	}
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot resolve allowed path %q: %v", d, err))
		}
		return target, nil
	}
	return abs, nil
}

// Check returns an INVALID_REQUEST error for a path the policy refuses, and
// FILE_NOT_FOUND when a path to be read does not exist.
func (p *PathPolicy) Check(path string, access Access) error {
	abs, err := checkSyntax(path)
	if err != nil {
		return err
	}

	if !p.unrestricted {
		parent := filepath.Dir(abs)
		if !slices.Contains(p.dirs, parent) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"file must be directly in an allowed directory (no subdirectories); allowed: %v", p.dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if access == ReadAccess {
		if _, err := os.Stat(abs); stderrors.Is(err, fs.ErrNotExist) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// ValidatePath checks path against the policy built from cfg.
func ValidatePath(path string, access Access, cfg *config.Config) error {
	if _, err := checkSyntax(path); err != nil {
		return err
	}
	p, err := NewPathPolicy(cfg)
	if err != nil {
		return err
	}
	return p.Check(path, access)
}

// checkSyntax rejects empty paths, ".." components and non-CSV names, and
// returns the absolute form.
func checkSyntax(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), csvExt) {
		return "", errors.NewInvalidRequest("path must have .csv extension")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	return abs, nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// containsTraversal reports whether any component of path is "..".
// Both separators are checked so "a/../b" is caught on Windows too.
func containsTraversal(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	return slices.Contains(parts, "..")
}

// ExportsDir returns the configured exports directory, or ~/.skumate/exports.
func ExportsDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.ExportsDir != "" {
		return cfg.ExportsDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, ".skumate", "exports"), nil
}

// openChecked opens a path that passed Check without following a symlink in
// its final component. Write access creates or truncates with mode 0600.
func openChecked(path string, access Access) (*os.File, error) {
	flag, perm := os.O_RDONLY, os.FileMode(0)
	if access == WriteAccess {
		flag, perm = os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600
	}

	f, err := openNoFollow(path, flag, perm)
	switch {
	case err == nil:
		return f, nil
	case isSymlinkRefusal(err):
		return nil, errors.NewInvalidRequest("refusing to follow symlink: " + filepath.Base(path))
	case stderrors.Is(err, fs.ErrNotExist) && access == ReadAccess:
		return nil, errors.NewFileNotFound(path)
	}
	return nil, errors.NewInternal(fmt.Errorf("open %s: %w", filepath.Base(path), err))
}
