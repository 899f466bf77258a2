package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ZaguanLabs/nmtflow"
)

const (
	// WarmupSource identifies warmup events from EventBridge schedules.
	WarmupSource = "warmup"

	// warmupLoadTimeout bounds how long a warmup waits for the engine.
	warmupLoadTimeout = 60 * time.Second
)

// WarmupEvent is the scheduled payload that keeps an instance and its
// engine loaded.
type WarmupEvent struct {
	Source string `json:"source"`
}

// WarmupResponse reports the engine state after a warmup.
type WarmupResponse struct {
	Status string               `json:"status"`
	Engine nmtflow.HealthReport `json:"engine"`
}

// IsWarmupEvent checks if the event is a warmup event.
func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var w WarmupEvent
	if err := json.Unmarshal(event, &w); err != nil || w.Source != WarmupSource {
		return nil, false
	}
	return &w, true
}

// HandleWarmup waits for the engine to finish loading, retrying a failed
// load, and reports its health.
func (h *Handler) HandleWarmup(ctx context.Context, _ *WarmupEvent) *WarmupResponse {
	ctx, cancel := context.WithTimeout(ctx, warmupLoadTimeout)
	defer cancel()

	status := "warm"
	if err := h.app.Handle.Load(ctx); err != nil {
		status = "cold"
	}
	return &WarmupResponse{Status: status, Engine: h.app.Handle.Health()}
}
