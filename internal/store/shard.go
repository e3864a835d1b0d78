package store

import (
	"sync"
	"time"

	"examwatch/pkg/models"
)

type shard struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// getOrCreateLocked must be called with the shard's mutex held.
func (sh *shard) getOrCreateLocked(sessionID string, now time.Time, s *Store) (*session, bool) {
	if sess, ok := sh.sessions[sessionID]; ok {
		return sess, false
	}

	sess := &session{
		id:         sessionID,
		createdAt:  now,
		lastSeenAt: now,
		status:     models.StatusOpen,
		slots:      make(map[models.DetectorKind]*models.SignalEnvelope, len(models.Kinds)),
	}
	sess.fusedScore, sess.riskLevel = s.scorer.Score(sess.slots, now)
	sh.sessions[sessionID] = sess
	return sess, true
}
