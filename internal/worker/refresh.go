// Package worker runs the periodic weather refresh across all tracked
// locations with bounded concurrency.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Updater refreshes weather data for one location.
type Updater interface {
	Update(ctx context.Context) error
}

// Target is one tracked location and its client.
type Target struct {
	Name   string
	Client Updater
}

// RefreshJob fans a refresh run out over all targets.
type RefreshJob struct {
	config  RefreshConfig
	logger  zerolog.Logger
	targets []Target

	metrics *RefreshMetrics
	ready   atomic.Bool
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns         int64
	SuccessfulUpdates int64
	FailedUpdates     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Logger  zerolog.Logger
	Targets []Target
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config = DefaultRefreshConfig()
	}

	return &RefreshJob{
		config:  config,
		logger:  cfg.Logger,
		targets: cfg.Targets,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records a failed location update.
type RefreshError struct {
	Target string
	Error  string
}

// Run refreshes all targets and reports the aggregate result.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{
		StartTime: startTime,
		Total:     len(j.targets),
	}

	j.logger.Info().
		Int("targets", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting weather refresh")

	targetsChan := make(chan Target, len(j.targets))
	resultsChan := make(chan targetResult, len(j.targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range j.targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err == nil {
			result.Successful++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{
				Target: tr.name,
				Error:  tr.err.Error(),
			})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	if result.Successful > 0 {
		j.ready.Store(true)
	}
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("weather refresh completed")

	return result
}

type targetResult struct {
	name string
	err  error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, targets <-chan Target, results chan<- targetResult) {
	for target := range targets {
		select {
		case <-ctx.Done():
			results <- targetResult{name: target.Name, err: ctx.Err()}
		default:
			results <- targetResult{name: target.Name, err: j.refreshTarget(ctx, target)}
		}
	}
}

func (j *RefreshJob) refreshTarget(ctx context.Context, target Target) error {
	targetCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if err := target.Client.Update(targetCtx); err != nil {
		j.logger.Error().Err(err).Str("target", target.Name).Msg("failed to update weather data")
		return err
	}
	return nil
}

// Ready reports whether at least one refresh run has succeeded for any
// target since startup.
func (j *RefreshJob) Ready() bool {
	return j.ready.Load()
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulUpdates += int64(result.Successful)
	j.metrics.FailedUpdates += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:         j.metrics.TotalRuns,
		SuccessfulUpdates: j.metrics.SuccessfulUpdates,
		FailedUpdates:     j.metrics.FailedUpdates,
		LastRunAt:         j.metrics.LastRunAt,
		LastRunDuration:   j.metrics.LastRunDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":         m.TotalRuns,
		"successful_updates": m.SuccessfulUpdates,
		"failed_updates":     m.FailedUpdates,
		"last_run_at":        m.LastRunAt,
		"last_run_duration":  m.LastRunDuration.String(),
		"total_duration":     m.TotalDuration.String(),
	}
}
