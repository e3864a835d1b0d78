package pipeline

import (
	"examwatch/internal/logger"
	"examwatch/pkg/models"
)

// AlertBuffer is an alert sink that queues events for batched writing off the
// ingestion path. Publish never blocks; if the buffer is full the event is
// dropped with a warning rather than stalling an apply.
type AlertBuffer struct {
	ch chan *models.AlertEvent
}

// NewAlertBuffer creates a buffer holding up to size pending events.
func NewAlertBuffer(size int) *AlertBuffer {
	if size <= 0 {
		size = 1024
	}
	return &AlertBuffer{ch: make(chan *models.AlertEvent, size)}
}

// Publish queues one alert event.
func (b *AlertBuffer) Publish(event *models.AlertEvent) error {
	select {
	case b.ch <- event:
	default:
		logger.Warnf("Alert buffer full, dropping alert for session %s", event.SessionID)
	}
	return nil
}

// Events exposes the pending event stream to the write loop.
func (b *AlertBuffer) Events() <-chan *models.AlertEvent {
	return b.ch
}
