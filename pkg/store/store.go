package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mindgarden/engram/pkg/lockfile"
)

// ErrNotFound indicates that no entity file matched the given name.
var ErrNotFound = errors.New("entity not found")

// ErrConflict indicates that a rename target already exists.
var ErrConflict = errors.New("entity already exists")

// Store reads and writes entity files under a single entities directory.
// Read paths take no lock; mutations go through advisory per-file locks
// and atomic writes.
type Store struct {
	dir         string
	lockTimeout time.Duration
}

// New creates a store over dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create entities dir: %w", err)
	}
	return &Store{dir: dir, lockTimeout: lockfile.DefaultTimeout}, nil
}

// Dir returns the entities directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for an entity name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, Sanitize(name)+".md")
}

// Read returns the parsed entity for name, or ErrNotFound. Only the exact
// sanitized filename is tried; use Find for forgiving lookup.
func (s *Store) Read(name string) (*Entity, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read entity %q: %w", name, err)
	}
	return ParseEntity(name, string(data)), nil
}

// Find locates an entity file by exact sanitized name, falling back to a
// case-insensitive substring scan over stored names. The fallback keeps
// fix commands usable without the exact canonical spelling.
func (s *Store) Find(name string) (path string, err error) {
	exact := s.Path(name)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	stems, err := s.stems()
	if err != nil {
		return "", err
	}
	needle := strings.ToLower(name)
	for _, stem := range stems {
		if strings.Contains(strings.ToLower(stem), needle) {
			return filepath.Join(s.dir, stem+".md"), nil
		}
	}
	return "", fmt.Errorf("entity %q: %w", name, ErrNotFound)
}

// Write persists a new or replacement entity file rendered from e.
func (s *Store) Write(e *Entity) error {
	return s.WriteContent(e.Name, e.Render())
}

// WriteContent persists raw content for name under lock.
func (s *Store) WriteContent(name, content string) error {
	return lockfile.WriteLocked(s.Path(name), []byte(content), s.lockTimeout)
}

// List returns all entities in the store, sorted by filename.
func (s *Store) List() ([]*Entity, error) {
	stems, err := s.stems()
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(stems))
	for _, stem := range stems {
		data, err := os.ReadFile(filepath.Join(s.dir, stem+".md"))
		if err != nil {
			continue // raced with a concurrent rename/archive
		}
		entities = append(entities, ParseEntity(DisplayName(stem), string(data)))
	}
	return entities, nil
}

// Rename moves an entity to a new canonical name, rewriting the title
// line. Returns ErrConflict if the target already exists.
func (s *Store) Rename(oldName, newName string) (string, error) {
	oldPath := s.Path(oldName)
	newPath := s.Path(newName)

	data, err := os.ReadFile(oldPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("entity %q: %w", oldName, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(newPath); err == nil {
		return "", fmt.Errorf("entity %q: %w", newName, ErrConflict)
	}

	content := strings.Replace(string(data), "# "+oldName, "# "+newName, 1)
	release, _ := lockfile.Lock(oldPath, s.lockTimeout)
	defer release()
	if err := lockfile.AtomicWrite(newPath, []byte(content)); err != nil {
		return "", err
	}
	if err := os.Remove(oldPath); err != nil {
		return "", fmt.Errorf("remove old entity file: %w", err)
	}
	return fmt.Sprintf("Renamed: %s → %s", oldName, newName), nil
}

// SetType updates the entity's type marker in place, locating the file
// with Find.
func (s *Store) SetType(name, newType string) (string, error) {
	path, err := s.Find(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	old := typeRe.FindString(content)
	if old == "" {
		return fmt.Sprintf("No type field found in %s", stem(path)), nil
	}
	content = strings.Replace(content, old, "**Type:** "+newType, 1)
	if err := lockfile.WriteLocked(path, []byte(content), s.lockTimeout); err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s: type → %s", stem(path), newType), nil
}

// AddFact appends a fact bullet to the Facts section, creating the
// section if missing. The check is a cheap whole-file substring match:
// if the literal fact text appears anywhere, it is reported as existing.
func (s *Store) AddFact(name, fact string) (string, error) {
	path, err := s.Find(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)

	if strings.Contains(content, fact) {
		return fmt.Sprintf("Fact already exists in %s", stem(path)), nil
	}

	switch {
	case strings.Contains(content, "## Facts"):
		content = strings.Replace(content, "## Facts\n", "## Facts\n- "+fact+"\n", 1)
	case strings.Contains(content, "## Timeline"):
		content = strings.Replace(content, "## Timeline", "## Facts\n- "+fact+"\n\n## Timeline", 1)
	default:
		content += "\n## Facts\n- " + fact + "\n"
	}

	if err := lockfile.WriteLocked(path, []byte(content), s.lockTimeout); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added fact to %s: %s", stem(path), fact), nil
}

// RemoveFact deletes every bullet line containing substr (case-insensitive).
func (s *Store) RemoveFact(name, substr string) (string, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(substr)
	removed := false
	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "- ") && strings.Contains(strings.ToLower(line), needle) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}

	if !removed {
		return fmt.Sprintf("No fact matching %q found in %s", substr, stem(path)), nil
	}
	if err := lockfile.WriteLocked(path, []byte(strings.Join(kept, "\n")), s.lockTimeout); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed fact containing %q from %s", substr, stem(path)), nil
}

func (s *Store) stems() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list entities dir: %w", err)
	}
	var stems []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(stems)
	return stems, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}
