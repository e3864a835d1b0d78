// Package store holds the live per-session fusion state. Sessions are
// partitioned across independently locked shards so applies for different
// sessions proceed in parallel while applies for one session serialize.
package store

import (
	"hash/fnv"
	"time"

	"examwatch/pkg/models"
)

const shardCount = 32

// Scorer recomputes a session's derived fields from its signal slots. It is
// the only component allowed to influence fused_score and active_triggers.
type Scorer interface {
	Score(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) (int, models.RiskLevel)
	Triggers(slots map[models.DetectorKind]*models.SignalEnvelope, now time.Time) []string
}

// session is the mutable per-attempt state. All mutation happens inside the
// owning shard's critical section.
type session struct {
	id         string
	createdAt  time.Time
	lastSeenAt time.Time
	status     models.SessionStatus
	slots      map[models.DetectorKind]*models.SignalEnvelope
	fusedScore int
	riskLevel  models.RiskLevel
	triggers   []string
}

// Store is the concurrency-safe holder of all live sessions.
type Store struct {
	scorer Scorer
	now    func() time.Time
	shards [shardCount]shard
}

// New creates an empty store driven by the given scorer.
func New(scorer Scorer) *Store {
	s := &Store{scorer: scorer, now: time.Now}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*session)
	}
	return s
}

// SetClock overrides the store's clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.shards[h.Sum32()%shardCount]
}

// ApplyResult is the outcome of one serialized apply.
type ApplyResult struct {
	Snapshot      models.SessionSnapshot
	PreviousLevel models.RiskLevel
	Created       bool
}

// Apply inserts or replaces the envelope's per-kind slot, updates
// last_seen_at, recomputes the derived fields, and returns an immutable
// snapshot plus the level before the apply. The whole read-modify-write is
// atomic per session. An unknown session is created on the spot, which also
// resolves the race with concurrent eviction: a late envelope for a just
// evicted session is valid new evidence, not a fault.
func (s *Store) Apply(env *models.SignalEnvelope) ApplyResult {
	sh := s.shardFor(env.SessionID)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, created := sh.getOrCreateLocked(env.SessionID, now, s)
	prev := sess.riskLevel

	sess.slots[env.DetectorKind] = env
	sess.lastSeenAt = now
	sess.fusedScore, sess.riskLevel = s.scorer.Score(sess.slots, now)
	sess.triggers = s.scorer.Triggers(sess.slots, now)

	return ApplyResult{
		Snapshot:      snapshot(sess),
		PreviousLevel: prev,
		Created:       created,
	}
}

// GetOrCreate returns the session's snapshot, creating a fresh OPEN session
// with empty slots if the id is unknown. Never fails.
func (s *Store) GetOrCreate(sessionID string) models.SessionSnapshot {
	sh := s.shardFor(sessionID)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, _ := sh.getOrCreateLocked(sessionID, now, s)
	return snapshot(sess)
}

// Get returns the session's snapshot if it is live.
func (s *Store) Get(sessionID string) (models.SessionSnapshot, bool) {
	sh := s.shardFor(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return models.SessionSnapshot{}, false
	}
	return snapshot(sess), true
}

// SetStatus moves a live session to the given proctoring status.
func (s *Store) SetStatus(sessionID string, status models.SessionStatus) (models.SessionSnapshot, bool) {
	sh := s.shardFor(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[sessionID]
	if !ok {
		return models.SessionSnapshot{}, false
	}
	sess.status = status
	return snapshot(sess), true
}

// SnapshotAll returns a point-in-time view of every live session. Each shard
// is locked only for the time it takes to copy its snapshots.
func (s *Store) SnapshotAll() []models.SessionSnapshot {
	var out []models.SessionSnapshot
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, sess := range sh.sessions {
			out = append(out, snapshot(sess))
		}
		sh.mu.Unlock()
	}
	return out
}

// EvictIdle removes sessions whose last_seen_at is older than the idle
// threshold, marking them RESOLVED. It returns the evicted snapshots for
// external archival. Each shard's lock is held only long enough to
// check-and-remove, so a scan never starves live ingestion.
func (s *Store) EvictIdle(idleThreshold time.Duration) []models.SessionSnapshot {
	cutoff := s.now().Add(-idleThreshold)

	var evicted []models.SessionSnapshot
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.lastSeenAt.After(cutoff) {
				continue
			}
			sess.status = models.StatusResolved
			evicted = append(evicted, snapshot(sess))
			delete(sh.sessions, id)
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

func snapshot(sess *session) models.SessionSnapshot {
	triggers := make([]string, len(sess.triggers))
	copy(triggers, sess.triggers)

	return models.SessionSnapshot{
		SessionID:      sess.id,
		CreatedAt:      sess.createdAt,
		LastSeenAt:     sess.lastSeenAt,
		FusedScore:     sess.fusedScore,
		RiskLevel:      sess.riskLevel,
		ActiveTriggers: triggers,
		Actions:        models.ActionsForLevel(sess.riskLevel),
		Status:         sess.status,
	}
}
