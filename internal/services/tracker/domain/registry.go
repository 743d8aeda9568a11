package domain

import "time"

// Registry holds the live session set keyed by normalized session key.
// Traversal order is insertion order, which keeps the message pool stable
// while sessions stay alive.
type Registry struct {
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// MergeResult reports which session keys a merge created or refreshed.
type MergeResult struct {
	Added   []string
	Updated []string
}

// Merge folds one snapshot into the registry. Unknown keys are inserted with
// FirstSeenAt = LastSeenAt = now; known keys get their player list overwritten
// wholesale (last sighting wins) and LastSeenAt advanced. Sessions absent from
// the snapshot are left untouched; expiry is Expire's job, not Merge's.
func (r *Registry) Merge(snapshots []Snapshot, now time.Time) MergeResult {
	var result MergeResult
	for _, snap := range snapshots {
		key := NormalizeKey(snap.ID)
		if key == "" {
			continue
		}
		if existing, ok := r.sessions[key]; ok {
			existing.Players = append([]string(nil), snap.Players...)
			existing.LastSeenAt = now
			result.Updated = append(result.Updated, key)
			continue
		}
		r.sessions[key] = &Session{
			Key:         key,
			Kind:        snap.Kind,
			Version:     snap.Version,
			TickRate:    snap.TickRate,
			Difficulty:  snap.Difficulty,
			Flags:       snap.Flags,
			Players:     append([]string(nil), snap.Players...),
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		r.order = append(r.order, key)
		result.Added = append(result.Added, key)
	}
	return result
}

// Expire removes every session not refreshed within ttl, marking each with
// EndedAt = now. The boundary is inclusive: a session whose age equals ttl
// exactly is expired. Returned sessions are in registry traversal order and
// are no longer present in the live set.
func (r *Registry) Expire(now time.Time, ttl time.Duration) []*Session {
	var ended []*Session
	remaining := r.order[:0]
	for _, key := range r.order {
		session := r.sessions[key]
		if now.Sub(session.LastSeenAt) < ttl {
			remaining = append(remaining, key)
			continue
		}
		endedAt := now
		session.EndedAt = &endedAt
		delete(r.sessions, key)
		ended = append(ended, session)
	}
	r.order = remaining
	return ended
}

// Live returns the live sessions in traversal order.
func (r *Registry) Live() []*Session {
	live := make([]*Session, 0, len(r.order))
	for _, key := range r.order {
		live = append(live, r.sessions[key])
	}
	return live
}

// Get looks up a live session by key.
func (r *Registry) Get(id string) (*Session, bool) {
	session, ok := r.sessions[NormalizeKey(id)]
	return session, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return len(r.order)
}
