package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcgate/gateway/domain/usage"
	"github.com/svcgate/gateway/ports"
)

// UsageService implements C16: records one usage entry per completed
// request, in either of two deployment modes (config.UsageConfig.Mode).
// "immediate" writes each record synchronously as a single-element batch,
// for short-lived FaaS deployments with no background goroutine budget.
// "buffered" accumulates into a domain/usage.Buffer and flushes on the
// soft/hard/timer/shutdown triggers of spec.md §4.16.
type UsageService struct {
	store    ports.UsageStore
	log      zerolog.Logger
	mode     string
	buffer   *usage.Buffer
	interval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewUsageService builds the usage sink for the given mode ("immediate" or
// "buffered"). In buffered mode the caller must call Start to run the
// timer loop and Stop to drain on shutdown.
func NewUsageService(store ports.UsageStore, log zerolog.Logger, mode string, interval time.Duration) *UsageService {
	if interval <= 0 {
		interval = usage.FlushInterval
	}
	return &UsageService{
		store:    store,
		log:      log,
		mode:     mode,
		buffer:   usage.NewBuffer(),
		interval: interval,
	}
}

// Record appends one usage record, flushing immediately (immediate mode)
// or when a soft/hard threshold is crossed (buffered mode).
func (s *UsageService) Record(ctx context.Context, r usage.Record) {
	if s.mode == "immediate" {
		s.flushBatch(ctx, []usage.Record{r})
		return
	}

	hardDue := s.buffer.Append(r)
	if hardDue || s.buffer.ShouldSoftFlush() {
		s.flushNow(ctx)
	}
}

// Start launches the background timer loop for buffered mode. A no-op in
// immediate mode.
func (s *UsageService) Start(ctx context.Context) {
	if s.mode != "buffered" {
		return
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.flushNow(ctx)
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop drains any buffered records and stops the timer loop. It never
// blocks process exit longer than one flush attempt, per spec.md §4.16.
func (s *UsageService) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ch := s.stopCh
	s.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	s.wg.Wait()
	s.flushNow(ctx)
}

func (s *UsageService) flushNow(ctx context.Context) {
	batch := s.buffer.Drain()
	if len(batch) == 0 {
		return
	}
	s.flushBatch(ctx, batch)
}

// flushBatch writes batch, retrying up to usage.FlushMaxRetries times before
// giving up. A still-failing batch is dropped with a logged warning rather
// than requeued forever, per spec.md §4.16 -- usage data is best-effort and
// must never block or grow unbounded.
func (s *UsageService) flushBatch(ctx context.Context, batch []usage.Record) {
	var err error
	for attempt := 0; attempt <= usage.FlushMaxRetries; attempt++ {
		if err = s.store.RecordBatch(ctx, batch); err == nil {
			return
		}
	}
	s.log.Warn().Err(err).Int("count", len(batch)).Msg("usage flush failed after retries, dropping batch")
}
