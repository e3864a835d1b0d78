package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"examwatch/internal/engine"
	inputredis "examwatch/internal/input/redis"
	"examwatch/internal/logger"
	"examwatch/pkg/models"
)

// TelemetryPipeline consumes detector envelopes from Redis, feeds them to the
// fusion engine, and batches resulting alerts to the configured writer.
type TelemetryPipeline struct {
	consumer      *inputredis.Consumer
	engine        *engine.Engine
	buffer        *AlertBuffer
	alertWriter   AlertWriter
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// NewTelemetryPipeline creates a pipeline. buffer must be the same sink the
// alert dispatcher publishes to, so alerts fired by API-delivered envelopes
// reach the writer too.
func NewTelemetryPipeline(consumer *inputredis.Consumer, eng *engine.Engine, buffer *AlertBuffer, alertWriter AlertWriter, workers, batchSize int, flushInterval time.Duration) *TelemetryPipeline {
	return &TelemetryPipeline{
		consumer:      consumer,
		engine:        eng,
		buffer:        buffer,
		alertWriter:   alertWriter,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop and blocks until the context is canceled.
func (p *TelemetryPipeline) Run(ctx context.Context) error {
	logger.Infof("Telemetry pipeline started")

	if p.workers <= 0 {
		p.workers = 8
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)

	var wg sync.WaitGroup

	if p.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.readLoop(ctx, msgCh)
			close(msgCh)
		}()

		for i := 0; i < p.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.workerLoop(msgCh)
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *TelemetryPipeline) Close() error {
	if p.alertWriter != nil {
		if err := p.alertWriter.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *TelemetryPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop telemetry message: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			continue
		}
		out <- payload
	}
}

func (p *TelemetryPipeline) workerLoop(in <-chan []byte) {
	for payload := range in {
		env, err := models.ParseEnvelope(payload)
		if err != nil {
			var invalid *models.InvalidSignalError
			if errors.As(err, &invalid) {
				logger.Warnf("Rejected signal envelope: %v", invalid)
			} else {
				logger.Warnf("Failed to parse telemetry message: %v", err)
			}
			continue
		}

		if _, _, err := p.engine.Ingest(env); err != nil {
			logger.Warnf("Rejected signal envelope for session %s: %v", env.SessionID, err)
		}
	}
}

func (p *TelemetryPipeline) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.AlertEvent

	flush := func() {
		if p.alertWriter == nil || len(batch) == 0 {
			batch = nil
			return
		}
		for {
			if err := p.alertWriter.WriteAlerts(batch); err != nil {
				logger.Errorf("Failed to write alerts: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			batch = nil
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case event := <-p.buffer.Events():
			batch = append(batch, event)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}
