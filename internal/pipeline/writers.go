package pipeline

import "examwatch/pkg/models"

// AlertWriter writes alert event batches to a downstream sink.
type AlertWriter interface {
	WriteAlerts(events []*models.AlertEvent) error
	Close() error
}

// ArchiveWriter persists evicted session summaries.
type ArchiveWriter interface {
	ArchiveSessions(snapshots []models.SessionSnapshot) error
	Close() error
}
