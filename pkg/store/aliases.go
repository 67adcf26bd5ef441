package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mindgarden/engram/pkg/lockfile"
)

const aliasFile = ".aliases.json"

// Aliases returns the alias map (alias → canonical name), loaded from
// entities/.aliases.json. A missing file is an empty map.
func (s *Store) Aliases() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, aliasFile))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alias map: %w", err)
	}
	aliases := map[string]string{}
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parse alias map: %w", err)
	}
	return aliases, nil
}

// SaveAliases persists the alias map, dropping self-mappings. Lookups are
// single-hop, so chains are not collapsed here; AddAlias avoids creating
// them.
func (s *Store) SaveAliases(aliases map[string]string) error {
	clean := map[string]string{}
	for alias, canonical := range aliases {
		if !strings.EqualFold(alias, canonical) {
			clean[alias] = canonical
		}
	}
	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alias map: %w", err)
	}
	return lockfile.WriteLocked(filepath.Join(s.dir, aliasFile), append(data, '\n'), s.lockTimeout)
}

// AddAlias records alias → canonical. If canonical is itself an alias,
// the mapping points at its target so resolution stays single-hop.
func (s *Store) AddAlias(alias, canonical string) error {
	aliases, err := s.Aliases()
	if err != nil {
		return err
	}
	if target, ok := lookupFold(aliases, canonical); ok {
		canonical = target
	}
	if strings.EqualFold(alias, canonical) {
		return nil
	}
	aliases[alias] = canonical
	return s.SaveAliases(aliases)
}

// ResolveAlias maps name through the alias table (case-insensitive,
// single hop). Unknown names come back unchanged.
func (s *Store) ResolveAlias(name string) string {
	aliases, err := s.Aliases()
	if err != nil {
		return name
	}
	if target, ok := lookupFold(aliases, name); ok {
		return target
	}
	return name
}

// AliasPairs returns (alias, canonical) pairs in deterministic order.
func (s *Store) AliasPairs() ([][2]string, error) {
	aliases, err := s.Aliases()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, aliases[k]})
	}
	return pairs, nil
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
