// Package sqlite provides the SQLite-backed tracker store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/gamewatch/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/gamewatch/internal/services/tracker/storage"
	"github.com/louisbranch/gamewatch/internal/services/tracker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Retention windows for the maintenance cleanup pass.
const (
	sightingRetention = 14 * 24 * time.Hour
	memberRetention   = 30 * 24 * time.Hour
	historyRetention  = 90 * 24 * time.Hour
)

// Store provides SQLite-backed tracker persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a tracker SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// SavePlayerSighting records that a player was seen in a game. The most
// recent open sighting row for the pair is extended; otherwise a new row is
// inserted.
func (s *Store) SavePlayerSighting(ctx context.Context, player, game string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	player = strings.TrimSpace(player)
	game = strings.TrimSpace(game)
	if player == "" {
		return fmt.Errorf("player name is required")
	}
	if game == "" {
		return fmt.Errorf("game name is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE player_sightings
SET last_at = ?
WHERE
    NOT EXISTS
    (
        SELECT *
        FROM player_sightings next
        WHERE
            next.last_at > player_sightings.last_at AND
            next.player_name = player_sightings.player_name AND
            next.game_name = player_sightings.game_name
    ) AND
    player_name = ? AND
    game_name = ?
`, at.UTC().UnixMilli(), player, game)
	if err != nil {
		return fmt.Errorf("update player sighting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("player sighting rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO player_sightings (player_name, game_name, first_at, last_at)
VALUES (?, ?, ?, ?)
`, player, game, at.UTC().UnixMilli(), at.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("insert player sighting: %w", err)
	}
	return nil
}

// SaveMemberSighting records that a network member was seen using a player
// name. Duplicate (member, player, timestamp) rows are suppressed.
func (s *Store) SaveMemberSighting(ctx context.Context, memberID, player string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	memberID = strings.TrimSpace(memberID)
	player = strings.TrimSpace(player)
	if memberID == "" {
		return fmt.Errorf("member id is required")
	}
	if player == "" {
		return fmt.Errorf("player name is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO member_sightings (member_id, player_name, at)
SELECT ?, ?, ?
WHERE NOT EXISTS
(
    SELECT *
    FROM member_sightings
    WHERE member_id = ? AND player_name = ? AND at = ?
)
`, memberID, player, at.UTC().UnixMilli(), memberID, player, at.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("insert member sighting: %w", err)
	}
	return nil
}

// FindPlayerSightings lists the newest sightings of a player name across both
// game and network observations.
func (s *Store) FindPlayerSightings(ctx context.Context, name string, limit int) ([]storage.Sighting, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("player name is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT at, player_name, game_name, member_id
FROM
(
    SELECT at, player_name, '' game_name, member_id
    FROM member_sightings
    UNION
    SELECT first_at at, player_name, game_name, '' member_id
    FROM player_sightings
    UNION
    SELECT last_at at, player_name, game_name, '' member_id
    FROM player_sightings
)
WHERE player_name = ? COLLATE NOCASE
ORDER BY at DESC
LIMIT ?
`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("find player sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

// FindGameSightings lists the newest player sightings for a game name.
func (s *Store) FindGameSightings(ctx context.Context, name string, limit int) ([]storage.Sighting, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("game name is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT at, player_name, game_name, '' member_id
FROM
(
    SELECT first_at at, player_name, game_name
    FROM player_sightings
    UNION
    SELECT last_at at, player_name, game_name
    FROM player_sightings
)
WHERE game_name = ? COLLATE NOCASE
ORDER BY at DESC
LIMIT ?
`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("find game sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

func scanSightings(rows *sql.Rows) ([]storage.Sighting, error) {
	var sightings []storage.Sighting
	for rows.Next() {
		var sighting storage.Sighting
		var at int64
		if err := rows.Scan(&at, &sighting.Player, &sighting.Game, &sighting.MemberID); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sighting.At = time.UnixMilli(at).UTC()
		sightings = append(sightings, sighting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return sightings, nil
}

// SaveMember upserts a network member record.
func (s *Store) SaveMember(ctx context.Context, member storage.Member) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	member.ID = strings.TrimSpace(member.ID)
	if member.ID == "" {
		return fmt.Errorf("member id is required")
	}
	if member.LastSeen.IsZero() {
		member.LastSeen = time.Now().UTC()
	}

	// A member reported without an address keeps its previously known one.
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO zt_members (id, physical_address, last_seen, status)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    physical_address = CASE WHEN excluded.physical_address <> '' THEN excluded.physical_address ELSE physical_address END,
    last_seen = excluded.last_seen,
    status = excluded.status
`, member.ID, member.PhysicalAddress, member.LastSeen.UTC().UnixMilli(), member.Status); err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

// GetMember looks up one member by ID.
func (s *Store) GetMember(ctx context.Context, id string) (storage.Member, bool, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Member{}, false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Member{}, false, fmt.Errorf("member id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, physical_address, last_seen, status
FROM zt_members
WHERE id = ?
`, id)
	member, err := scanMember(row.Scan)
	if err == sql.ErrNoRows {
		return storage.Member{}, false, nil
	}
	if err != nil {
		return storage.Member{}, false, fmt.Errorf("get member: %w", err)
	}
	return member, true, nil
}

// ListMembers lists members by most recently seen.
func (s *Store) ListMembers(ctx context.Context, limit int) ([]storage.Member, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, physical_address, last_seen, status
FROM zt_members
ORDER BY last_seen DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []storage.Member
	for rows.Next() {
		member, err := scanMember(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// MembersToBlock lists members whose physical address is banned but who are
// not yet blocked, newest first. The limit keeps one maintenance pass under
// the controller API rate limit.
func (s *Store) MembersToBlock(ctx context.Context, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT zt_members.id
FROM
    ip_bans JOIN
    zt_members ON ip_bans.ip_address = zt_members.physical_address
WHERE zt_members.status <> ?
ORDER BY zt_members.last_seen DESC
LIMIT ?
`, storage.MemberStatusBlocked, limit)
	if err != nil {
		return nil, fmt.Errorf("list members to block: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member ids: %w", err)
	}
	return ids, nil
}

// SetMemberStatus updates one member's status value.
func (s *Store) SetMemberStatus(ctx context.Context, id, status string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("member id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE zt_members SET status = ? WHERE id = ?
`, status, id); err != nil {
		return fmt.Errorf("set member status: %w", err)
	}
	return nil
}

func scanMember(scan func(dest ...any) error) (storage.Member, error) {
	var member storage.Member
	var lastSeen int64
	if err := scan(&member.ID, &member.PhysicalAddress, &lastSeen, &member.Status); err != nil {
		return storage.Member{}, err
	}
	member.LastSeen = time.UnixMilli(lastSeen).UTC()
	return member, nil
}

// SaveBan upserts an address ban.
func (s *Store) SaveBan(ctx context.Context, address string, expiration time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if expiration.IsZero() {
		return fmt.Errorf("expiration is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO ip_bans (ip_address, expiration) VALUES (?, ?)
`, address, expiration.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("save ban: %w", err)
	}
	return nil
}

// RemoveBan deletes an address ban.
func (s *Store) RemoveBan(ctx context.Context, address string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("address is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM ip_bans WHERE ip_address = ?
`, address); err != nil {
		return fmt.Errorf("remove ban: %w", err)
	}
	return nil
}

// ListBans lists bans by latest expiration.
func (s *Store) ListBans(ctx context.Context, limit int) ([]storage.Ban, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT ip_address, expiration
FROM ip_bans
ORDER BY expiration DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var bans []storage.Ban
	for rows.Next() {
		var ban storage.Ban
		var expiration int64
		if err := rows.Scan(&ban.Address, &expiration); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		ban.Expiration = time.UnixMilli(expiration).UTC()
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return bans, nil
}

// RecordSessionEnd persists the durable summary of one ended session.
func (s *Store) RecordSessionEnd(ctx context.Context, record storage.SessionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.Key = strings.TrimSpace(record.Key)
	if record.Key == "" {
		return fmt.Errorf("session key is required")
	}
	if record.StartedAt.IsZero() || record.EndedAt.IsZero() {
		return fmt.Errorf("session start and end times are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session record: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
INSERT INTO session_history (session_key, kind, version, started_at, ended_at)
VALUES (?, ?, ?, ?, ?)
`, record.Key, record.Kind, record.Version, record.StartedAt.UTC().UnixMilli(), record.EndedAt.UTC().UnixMilli())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session history: %w", err)
	}
	historyID, err := result.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("session history id: %w", err)
	}

	for _, player := range record.Players {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO session_players (history_id, player_name) VALUES (?, ?)
`, historyID, player); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert session player: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session record: %w", err)
	}
	return nil
}

// GameStats aggregates session history for a kind and version since a cutoff.
func (s *Store) GameStats(ctx context.Context, kind, version string, since time.Time) (storage.GameStats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.GameStats{}, err
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return storage.GameStats{}, fmt.Errorf("game kind is required")
	}

	var stats storage.GameStats
	var playtimeMillis sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(ended_at - started_at), 0)
FROM session_history
WHERE kind = ? AND version = ? AND started_at >= ?
`, kind, version, since.UTC().UnixMilli())
	if err := row.Scan(&stats.GamesPlayed, &playtimeMillis); err != nil {
		return storage.GameStats{}, fmt.Errorf("aggregate session history: %w", err)
	}
	stats.TotalPlaytime = time.Duration(playtimeMillis.Int64) * time.Millisecond

	row = s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(DISTINCT session_players.player_name)
FROM
    session_history JOIN
    session_players ON session_players.history_id = session_history.id
WHERE kind = ? AND version = ? AND started_at >= ?
`, kind, version, since.UTC().UnixMilli())
	if err := row.Scan(&stats.UniquePlayers); err != nil {
		return storage.GameStats{}, fmt.Errorf("count unique players: %w", err)
	}
	return stats, nil
}

// Cleanup prunes sightings, members, bans, and history past their retention
// windows. It only touches storage rows and never the in-memory registry.
func (s *Store) Cleanup(ctx context.Context, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sightingThreshold := now.Add(-sightingRetention).UTC().UnixMilli()
	memberThreshold := now.Add(-memberRetention).UTC().UnixMilli()
	historyThreshold := now.Add(-historyRetention).UTC().UnixMilli()

	steps := []struct {
		name  string
		query string
		arg   int64
	}{
		{"prune member sightings", "DELETE FROM member_sightings WHERE at < ?", sightingThreshold},
		{"prune player sightings", "DELETE FROM player_sightings WHERE last_at < ?", sightingThreshold},
		{"prune members", "DELETE FROM zt_members WHERE last_seen < ?", memberThreshold},
		{"prune expired bans", "DELETE FROM ip_bans WHERE expiration < ?", now.UTC().UnixMilli()},
		{"prune session players", "DELETE FROM session_players WHERE history_id IN (SELECT id FROM session_history WHERE ended_at < ?)", historyThreshold},
		{"prune session history", "DELETE FROM session_history WHERE ended_at < ?", historyThreshold},
	}
	for _, step := range steps {
		if _, err := s.sqlDB.ExecContext(ctx, step.query, step.arg); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
