package telemetry

import (
	"context"
	"time"

	"arksync/backend/internal/sensor"
)

// SightingRecorder persists when a sensor was active. store.Store satisfies it.
type SightingRecorder interface {
	RecordSighting(ctx context.Context, serial string, kind sensor.Kind, at time.Time) error
}

// HistorySink records every transition to active. Readings are ignored.
type HistorySink struct {
	rec SightingRecorder
}

func NewHistorySink(rec SightingRecorder) *HistorySink {
	return &HistorySink{rec: rec}
}

func (h *HistorySink) PublishReading(context.Context, Reading) error {
	return nil
}

func (h *HistorySink) PublishState(ctx context.Context, c StateChange) error {
	if c.State != sensor.Active.String() {
		return nil
	}

	return h.rec.RecordSighting(ctx, c.SerialNumber, c.Kind, c.Timestamp)
}
