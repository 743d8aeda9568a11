package domain

import "time"

// Settings are the runtime-adjustable tracker knobs. A copy is read at the
// start of every cycle; admin commands replace the stored value wholesale.
type Settings struct {
	TTL     time.Duration
	Refresh time.Duration
	Owners  []string
	Tables  Tables
}

// DefaultSettings returns the stock tracker settings.
func DefaultSettings() Settings {
	return Settings{
		TTL:     2 * time.Minute,
		Refresh: time.Minute,
		Tables:  DefaultTables(),
	}
}

// IsOwner reports whether the given user ID is a configured bot owner.
func (s Settings) IsOwner(userID string) bool {
	for _, owner := range s.Owners {
		if owner == userID {
			return true
		}
	}
	return false
}
