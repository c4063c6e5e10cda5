// Package vault provides filesystem operations for reading and writing
// notes and binary attachments in an Obsidian-style vault directory, and
// resolves messy image reference paths to files that actually exist.
package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

const (
	// vaultDirPerm is the permission mode for directories created inside
	// the vault. Group and other get read+execute for Obsidian access.
	vaultDirPerm = fs.FileMode(0o755)

	// vaultFilePerm is the permission mode for files written inside the
	// vault. Group and other get read access for shared access.
	vaultFilePerm = fs.FileMode(0o644)
)

// Store provides thread-safe filesystem operations on the vault
// directory. All writes are serialized by an exclusive lock; reads take
// a shared lock to prevent reading partial writes.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a Store rooted at the given directory. The directory
// must exist and must be an absolute path (resolved at config load time).
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("vault directory must not be empty")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("accessing vault directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", dir)
	}

	return &Store{root: dir}, nil
}

// Root returns the root directory of the vault.
func (s *Store) Root() string {
	return s.root
}

// ListNotes returns the vault-relative paths of every markdown note,
// sorted. Hidden files and directories (including .obsidian) are skipped.
func (s *Store) ListNotes() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var notes []string

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if info.IsDir() {
			return nil
		}

		if strings.EqualFold(filepath.Ext(rel), ".md") {
			notes = append(notes, rel)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking vault: %w", err)
	}

	sort.Strings(notes)

	return notes, nil
}

// ReadNote reads a note's text content by vault-relative path.
func (s *Store) ReadNote(relPath string) (string, error) {
	data, err := s.ReadBinary(relPath)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// WriteNote replaces a note's text content. It uses atomic write
// (temp file + rename) so other readers never observe a partial note.
func (s *Store) WriteNote(relPath, content string) error {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(absPath)

	tmp, err := os.CreateTemp(dir, ".lsky-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("closing temp file: %w", err)
	}

	// Preserve permissions of the existing note, or use the default.
	perm := vaultFilePerm
	if info, statErr := os.Stat(absPath); statErr == nil {
		perm = info.Mode()
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// ReadBinary reads a file's raw content by vault-relative path.
func (s *Store) ReadBinary(relPath string) ([]byte, error) {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return os.ReadFile(absPath) //nolint:gosec // G304: absPath validated by Store.resolve
}

// WriteBinary creates or overwrites a file with raw content, creating
// parent directories as needed.
func (s *Store) WriteBinary(relPath string, data []byte) error {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(absPath), vaultDirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", relPath, err)
	}

	return os.WriteFile(absPath, data, vaultFilePerm)
}

// MkdirAll creates a directory (and parents) by vault-relative path.
func (s *Store) MkdirAll(relPath string) error {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return os.MkdirAll(absPath, vaultDirPerm)
}

// Exists reports whether a vault-relative path resolves to an existing
// regular file. Directories do not count; a reference can only point at
// a file.
func (s *Store) Exists(relPath string) bool {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(absPath)

	return err == nil && !info.IsDir()
}

// FindByName walks the whole vault for a file whose basename exactly
// matches name and returns its vault-relative path. When several files
// match, the lexicographically first path wins so the result is stable
// across runs.
func (s *Store) FindByName(name string) (string, bool) {
	if name == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []string

	_ = filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries, keep walking
		}

		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.IsDir() && info.Name() == name {
			rel, relErr := filepath.Rel(s.root, path)
			if relErr == nil {
				matches = append(matches, filepath.ToSlash(rel))
			}
		}

		return nil
	})

	if len(matches) == 0 {
		return "", false
	}

	sort.Strings(matches)

	return matches[0], true
}

// resolve converts a vault-relative path to an absolute path, rejecting
// path traversal attempts. Validates against null bytes, ".." segments,
// and symlinks that escape the vault.
func (s *Store) resolve(relPath string) (string, error) {
	relPath = NormalizePath(relPath)
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("path contains null byte: %q", relPath)
	}

	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains ..: %q", relPath)
		}
	}

	absPath := filepath.Join(s.root, relPath)
	if !strings.HasPrefix(absPath, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal blocked: %q resolves outside vault dir", relPath)
	}

	// Resolve symlinks and verify the real path stays within the vault.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// New file: the prefix check above already passed and any
			// missing parents will be created inside the vault.
			return absPath, nil
		}

		return "", fmt.Errorf("resolving symlinks for %q: %w", relPath, err)
	}

	if !strings.HasPrefix(realPath, s.root+string(os.PathSeparator)) && realPath != s.root {
		return "", fmt.Errorf("symlink traversal blocked: %q resolves to %q outside vault dir", relPath, realPath)
	}

	return absPath, nil
}

// NormalizePath normalizes a vault-relative path. It converts backslashes
// to forward slashes, replaces non-breaking spaces with regular spaces,
// collapses repeated slashes, trims leading/trailing slashes and
// whitespace, and applies Unicode NFC normalization. Call this on every
// path entering the system.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, "\u00A0", " ")
	path = strings.ReplaceAll(path, "\u202F", " ")

	// Collapse multiple slashes.
	var b strings.Builder

	prevSlash := false

	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")

	return norm.NFC.String(path)
}
