// Package ingestion runs reconciliation passes: fetch the upcoming events of
// one source and fold them into the canonical model.
package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/dthul/discord-bot/internal/models"
)

// Connector defines the interface that all source adapters implement.
type Connector interface {
	// Source returns the source this connector reads.
	Source() models.Source

	// FetchUpcoming returns the normalized upcoming events of the source.
	FetchUpcoming(ctx context.Context) ([]models.SourceEvent, error)
}

// ConnectorStatus represents the outcome of the most recent passes.
type ConnectorStatus struct {
	Source         models.Source `json:"source"`
	Healthy        bool          `json:"healthy"`
	LastRun        time.Time     `json:"last_run,omitempty"`
	LastSuccess    time.Time     `json:"last_success,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	TotalRuns      int64         `json:"total_runs"`
	TotalErrors    int64         `json:"total_errors"`
	LastDuration   time.Duration `json:"last_duration"`
	AverageLatency time.Duration `json:"average_latency"`
}

type statusTracker struct {
	mu     sync.RWMutex
	status ConnectorStatus
}

func newStatusTracker(source models.Source) *statusTracker {
	return &statusTracker{status: ConnectorStatus{Source: source, Healthy: true}}
}

func (s *statusTracker) update(at time.Time, took time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastRun = at
	s.status.TotalRuns++
	s.status.LastDuration = took
	if err != nil {
		s.status.Healthy = false
		s.status.LastError = err.Error()
		s.status.TotalErrors++
	} else {
		s.status.Healthy = true
		s.status.LastError = ""
		s.status.LastSuccess = at
	}

	// simple moving average
	if s.status.AverageLatency == 0 {
		s.status.AverageLatency = took
	} else {
		s.status.AverageLatency = (s.status.AverageLatency + took) / 2
	}
}

func (s *statusTracker) get() ConnectorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
