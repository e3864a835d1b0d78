package pipeline

import (
	"context"
	"time"

	"examwatch/internal/engine"
	"examwatch/internal/logger"
)

// Evictor periodically removes idle sessions from the live store and hands
// their final snapshots to the archive. It runs on its own schedule so the
// scan never sits on the ingestion path.
type Evictor struct {
	engine     *engine.Engine
	archive    ArchiveWriter
	interval   time.Duration
	idleWindow time.Duration
}

// NewEvictor creates an eviction scheduler. archive may be nil when archival
// is disabled.
func NewEvictor(eng *engine.Engine, archive ArchiveWriter, interval, idleWindow time.Duration) *Evictor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if idleWindow <= 0 {
		idleWindow = 5 * time.Minute
	}
	return &Evictor{
		engine:     eng,
		archive:    archive,
		interval:   interval,
		idleWindow: idleWindow,
	}
}

// Run scans on every tick until the context is canceled.
func (e *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scan()
		}
	}
}

func (e *Evictor) scan() {
	evicted := e.engine.EvictIdle(e.idleWindow)
	if len(evicted) == 0 {
		return
	}
	logger.Infof("Evicted %d idle sessions", len(evicted))

	if e.archive == nil {
		return
	}
	if err := e.archive.ArchiveSessions(evicted); err != nil {
		logger.Errorf("Failed to archive evicted sessions: %v", err)
	}
}
