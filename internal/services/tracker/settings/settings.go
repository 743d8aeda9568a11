// Package settings holds the runtime-adjustable tracker configuration behind
// a mutex: the cycle loop reads a copy each cycle, admin commands mutate and
// persist it. The file format is plain JSON so operators can edit it offline.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

// Store guards a settings value and persists updates to disk.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings domain.Settings
}

type fileFormat struct {
	TTLSeconds     int               `json:"game_ttl_seconds"`
	RefreshSeconds int               `json:"refresh_seconds"`
	Owners         []string          `json:"bot_owners"`
	Kinds          map[string]string `json:"game_kinds"`
	TickRates      map[int]string    `json:"tick_rates"`
	Difficulties   map[int]string    `json:"difficulties"`
	Options        map[string]string `json:"game_options"`
}

// Load reads settings from path. A missing file yields the defaults; an empty
// path yields an in-memory store that never persists.
func Load(path string) (*Store, error) {
	store := &Store{path: path, settings: domain.DefaultSettings()}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	store.settings = fromFile(file)
	return store, nil
}

// Current returns a copy of the settings. The nested tables are shared maps;
// callers must treat them as read-only.
func (s *Store) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies mutate under the write lock and persists the result.
func (s *Store) Update(mutate func(*domain.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.settings)
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(toFile(s.settings), "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func fromFile(file fileFormat) domain.Settings {
	settings := domain.DefaultSettings()
	if file.TTLSeconds > 0 {
		settings.TTL = time.Duration(file.TTLSeconds) * time.Second
	}
	if file.RefreshSeconds > 0 {
		settings.Refresh = time.Duration(file.RefreshSeconds) * time.Second
	}
	settings.Owners = file.Owners
	if file.Kinds != nil {
		settings.Tables.Kinds = file.Kinds
	}
	if file.TickRates != nil {
		settings.Tables.TickRates = file.TickRates
	}
	if file.Difficulties != nil {
		settings.Tables.Difficulties = file.Difficulties
	}
	if file.Options != nil {
		settings.Tables.Options = file.Options
	}
	return settings
}

func toFile(settings domain.Settings) fileFormat {
	return fileFormat{
		TTLSeconds:     int(settings.TTL / time.Second),
		RefreshSeconds: int(settings.Refresh / time.Second),
		Owners:         settings.Owners,
		Kinds:          settings.Tables.Kinds,
		TickRates:      settings.Tables.TickRates,
		Difficulties:   settings.Tables.Difficulties,
		Options:        settings.Tables.Options,
	}
}
