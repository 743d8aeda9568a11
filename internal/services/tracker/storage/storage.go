// Package storage defines the persistence contracts for historical sighting
// lookups, network member tracking, bans, and session history. The live
// session registry is never persisted; these records exist for search
// commands, statistics, and the maintenance job.
package storage

import (
	"context"
	"time"
)

// Sighting is one historical observation of a player, either inside a game
// (Game set) or on the network (MemberID set).
type Sighting struct {
	Player   string
	Game     string
	MemberID string
	At       time.Time
}

// Member is one known network member.
type Member struct {
	ID              string
	PhysicalAddress string
	LastSeen        time.Time
	Status          string
}

// Member status values.
const (
	MemberStatusBlocked = "blocked"
)

// Ban is one address ban with an expiration.
type Ban struct {
	Address    string
	Expiration time.Time
}

// SessionRecord is the durable summary of one ended session.
type SessionRecord struct {
	Key       string
	Kind      string
	Version   string
	Players   []string
	StartedAt time.Time
	EndedAt   time.Time
}

// GameStats aggregates session history for one game kind and version.
type GameStats struct {
	GamesPlayed   int
	UniquePlayers int
	TotalPlaytime time.Duration
}

// SightingStore persists and searches player sightings.
type SightingStore interface {
	SavePlayerSighting(ctx context.Context, player, game string, at time.Time) error
	SaveMemberSighting(ctx context.Context, memberID, player string, at time.Time) error
	FindPlayerSightings(ctx context.Context, name string, limit int) ([]Sighting, error)
	FindGameSightings(ctx context.Context, name string, limit int) ([]Sighting, error)
}

// MemberStore persists network member records.
type MemberStore interface {
	SaveMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id string) (Member, bool, error)
	ListMembers(ctx context.Context, limit int) ([]Member, error)
	MembersToBlock(ctx context.Context, limit int) ([]string, error)
	SetMemberStatus(ctx context.Context, id, status string) error
}

// BanStore persists address bans.
type BanStore interface {
	SaveBan(ctx context.Context, address string, expiration time.Time) error
	RemoveBan(ctx context.Context, address string) error
	ListBans(ctx context.Context, limit int) ([]Ban, error)
}

// HistoryStore persists ended-session summaries for statistics.
type HistoryStore interface {
	RecordSessionEnd(ctx context.Context, record SessionRecord) error
	GameStats(ctx context.Context, kind, version string, since time.Time) (GameStats, error)
}

// Maintainer prunes stale storage rows.
type Maintainer interface {
	Cleanup(ctx context.Context, now time.Time) error
}

// Store is the full tracker persistence surface.
type Store interface {
	SightingStore
	MemberStore
	BanStore
	HistoryStore
	Maintainer
	Close() error
}
