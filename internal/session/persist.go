package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/metrics"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

func defaultRand() float64 { return rand.Float64() }

// captureLocked appends a version of next. A failed write is logged and the
// edit still applies. Caller holds s.mu.
func (r *Registry) captureLocked(ctx context.Context, s *Session, prev, next string, reason CaptureReason, participantID string, now time.Time) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.IOTimeout)
	defer cancel()
	_, err := r.store.AppendVersion(wctx, &document.Version{
		DocumentID:  s.DocumentID,
		Content:     next,
		Description: describe(reason, prev, next),
		Participant: participantID,
		CreatedAt:   now,
	})
	if err != nil {
		logger.Errorf("session: capture version of %s (%s): %v", s.DocumentID, reason, err)
		return
	}
	s.lastVersionAt = now
	metrics.VersionsCaptured.WithLabelValues(string(reason)).Inc()
	logger.Debugf("session: captured %s version of %s", reason, s.DocumentID)

	if p := r.opts.Policy.PruneProbability; p > 0 && r.opts.Rand() < p {
		r.prune(s.DocumentID)
	}
}

func (r *Registry) prune(documentID string) {
	keep := r.opts.Policy.RetainCount
	if keep <= 0 {
		return
	}
	// Shutdown waits on pruneW after setting closing; no Add may follow that
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return
	}
	r.pruneW.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.pruneW.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.IOTimeout)
		defer cancel()
		n, err := r.store.PruneVersions(ctx, documentID, keep)
		if err != nil {
			logger.Warnf("session: prune versions of %s: %v", documentID, err)
			return
		}
		if n > 0 {
			logger.Infof("session: pruned %d old versions of %s", n, documentID)
		}
	}()
}

// armDebounceLocked schedules a write-back DebounceDelay after the latest
// edit, replacing any pending one. Caller holds s.mu.
func (r *Registry) armDebounceLocked(s *Session) {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(r.opts.DebounceDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.IOTimeout)
		defer cancel()
		if err := r.flush(ctx, s, "debounce"); err != nil {
			logger.Errorf("session: debounced flush of %s: %v", s.DocumentID, err)
		}
	})
}

// writeLocked stores the current content if it changed since the last
// successful write. Caller holds s.flushMu and s.mu.
func (r *Registry) writeLocked(ctx context.Context, s *Session, trigger string) error {
	if s.revision == s.persisted {
		return nil
	}
	rev := s.revision
	if err := r.store.UpdateContent(ctx, s.DocumentID, s.content); err != nil {
		metrics.FlushFailures.WithLabelValues(trigger).Inc()
		return fmt.Errorf("flush %s: %w", s.DocumentID, err)
	}
	s.persisted = rev
	metrics.Flushes.WithLabelValues(trigger).Inc()
	logger.Debugf("session: flushed %s (%s)", s.DocumentID, trigger)
	return nil
}

// flush writes s to the store. An orphaned session (no participants left,
// typically after a failed final flush) is evicted once the write succeeds.
func (r *Registry) flush(ctx context.Context, s *Session, trigger string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := r.writeLocked(ctx, s, trigger); err != nil {
		return err
	}
	if len(s.participants) == 0 {
		r.closeLocked(s)
	}
	return nil
}

// Flush writes one live document immediately.
func (r *Registry) Flush(ctx context.Context, documentID string) error {
	s := r.lookup(documentID)
	if s == nil {
		return ErrNoSession
	}
	return r.flush(ctx, s, "manual")
}

// Sweep writes every session with unsaved edits. It runs on the cron schedule
// and is exported so callers can force a pass.
func (r *Registry) Sweep() {
	for _, s := range r.list() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.IOTimeout)
		if err := r.flush(ctx, s, "sweep"); err != nil {
			logger.Warnf("session: sweep: %v", err)
		}
		cancel()
	}
}

// Start schedules the periodic sweep.
func (r *Registry) Start() error {
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", r.opts.SweepInterval)
	if _, err := c.AddFunc(schedule, r.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	logger.Infof("session: sweeping unsaved documents every %s", r.opts.SweepInterval)
	return nil
}

// Shutdown stops new sessions, cancels pending timers and writes every live
// session in parallel. It returns the first write error, or ctx.Err() if the
// grace period ran out first.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	sessions := r.list()
	logger.Infof("session: shutting down, flushing %d live documents", len(sessions))
	var g errgroup.Group
	for _, s := range sessions {
		s := s
		s.mu.Lock()
		if s.debounce != nil {
			s.debounce.Stop()
			s.debounce = nil
		}
		s.mu.Unlock()
		g.Go(func() error {
			return r.flush(ctx, s, "shutdown")
		})
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		r.pruneW.Wait()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
