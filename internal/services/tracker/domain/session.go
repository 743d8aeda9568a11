// Package domain holds the session tracking model: the registry of live game
// sessions, snapshot validation, and message rendering. Everything in this
// package is side-effect free; persistence and Discord delivery live in the
// app, storage, and discord packages.
package domain

import (
	"strings"
	"time"
)

// Flags capture the boolean game attributes reported at session creation.
// They never change for the lifetime of a session.
type Flags struct {
	RunInTown    bool
	FullQuests   bool
	TheoQuest    bool
	CowQuest     bool
	FriendlyFire bool
}

// Snapshot is one externally reported sighting of a game session, as decoded
// from the discovery subprocess output.
type Snapshot struct {
	ID         string
	Kind       string
	Version    string
	TickRate   int
	Difficulty int
	Flags      Flags
	Players    []string
}

// Session is one tracked game instance. Categorical attributes are copied
// verbatim from the first sighting and never re-derived; only Players and
// LastSeenAt change on later sightings.
type Session struct {
	Key         string
	Kind        string
	Version     string
	TickRate    int
	Difficulty  int
	Flags       Flags
	Players     []string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	EndedAt     *time.Time
}

// Ended reports whether the session has been marked as ended.
func (s *Session) Ended() bool {
	return s != nil && s.EndedAt != nil
}

// NormalizeKey canonicalizes a session identifier. Keys are case-insensitive
// and compared in uppercase.
func NormalizeKey(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
