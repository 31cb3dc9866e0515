package contentcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"nino/internal/dbfacade"
)

// settingEntry stores the raw string and, if it parses, the int form —
// an integer parse failure caches the string with no int, and callers
// fall back to the supplied default rather than getting an error.
type settingEntry struct {
	str    string
	intVal int64
	hasInt bool
}

// Settings is the read-through cache over nino_setting, populated by a full
// table scan on startup and kept current by Invalidate calls driven by
// "setting:" notification payloads.
type Settings struct {
	mu      sync.RWMutex
	entries map[string]settingEntry
	db      *dbfacade.Facade
}

// NewSettings builds an empty Settings cache. Call Reload to populate it.
func NewSettings(db *dbfacade.Facade) *Settings {
	return &Settings{entries: make(map[string]settingEntry), db: db}
}

// Reload performs the full table scan, replacing the cache contents
// atomically under a single write lock.
func (s *Settings) Reload(ctx context.Context) error {
	rows, err := s.db.Query(ctx, "SELECT setting_key, setting_value FROM nino_setting")
	if err != nil {
		return fmt.Errorf("contentcache: reload settings: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]settingEntry)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("contentcache: scan setting row: %w", err)
		}
		fresh[key] = newSettingEntry(value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("contentcache: iterate settings: %w", err)
	}

	s.mu.Lock()
	s.entries = fresh
	s.mu.Unlock()
	return nil
}

func newSettingEntry(value string) settingEntry {
	e := settingEntry{str: value}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		e.intVal = n
		e.hasInt = true
	}
	return e
}

// InvalidateOne re-reads a single key, used when a "setting:<key>"
// notification arrives with an identifier.
func (s *Settings) InvalidateOne(ctx context.Context, key string) error {
	rows, err := s.db.QueryOpt(ctx, "SELECT setting_value FROM nino_setting WHERE setting_key = $1", key)
	if err != nil {
		return fmt.Errorf("contentcache: invalidate setting %q: %w", key, err)
	}
	if rows == nil {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil
	}
	defer rows.Close()
	var value string
	if err := rows.Scan(&value); err != nil {
		return fmt.Errorf("contentcache: scan setting %q: %w", key, err)
	}
	s.mu.Lock()
	s.entries[key] = newSettingEntry(value)
	s.mu.Unlock()
	return nil
}

// Str returns the raw string value for key, or def if the key is unknown.
func (s *Settings) Str(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return def
	}
	return e.str
}

// Int returns the parsed integer value for key, falling back to def when
// the key is unknown or its value failed to parse as an integer.
func (s *Settings) Int(key string, def int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || !e.hasInt {
		return def
	}
	return e.intVal
}

// Bool returns key's value interpreted loosely ("1"/"true" are true,
// everything else false), falling back to def when the key is unknown.
func (s *Settings) Bool(key string, def bool) bool {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return def
	}
	return e.str == "1" || e.str == "true"
}
