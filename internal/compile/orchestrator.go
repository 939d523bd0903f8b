package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	ErrCompilationFailed = errors.New("compilation failed")
	ErrNoStrategies      = errors.New("no rendering strategies configured")
	ErrTooManyStrategies = errors.New("too many rendering strategies")
)

// ContentSource hands out live content to attached participants only.
type ContentSource interface {
	LiveContent(documentID, participantID string) (string, error)
}

// Request identifies who is compiling what.
type Request struct {
	DocumentID    string
	ParticipantID string
}

// Orchestrator runs strategies in order until one yields a valid artifact.
type Orchestrator struct {
	source     ContentSource
	strategies []Strategy
	artifacts  ArtifactStore
	jobs       JobStore
	now        func() time.Time
}

// DefaultMaxStrategies caps the worst-case latency of a failed compile.
const DefaultMaxStrategies = 4

// NewOrchestrator validates the strategy list against maxStrategies.
func NewOrchestrator(source ContentSource, strategies []Strategy, artifacts ArtifactStore, jobs JobStore, maxStrategies int) (*Orchestrator, error) {
	if maxStrategies <= 0 {
		maxStrategies = DefaultMaxStrategies
	}
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	if len(strategies) > maxStrategies {
		return nil, fmt.Errorf("%w: %d configured, limit %d", ErrTooManyStrategies, len(strategies), maxStrategies)
	}
	for _, s := range strategies {
		if s.Timeout() <= 0 {
			return nil, fmt.Errorf("strategy %s has no timeout", s.Name())
		}
	}
	if jobs == nil {
		jobs = NewMemoryJobStore(0)
	}
	return &Orchestrator{
		source:     source,
		strategies: strategies,
		artifacts:  artifacts,
		jobs:       jobs,
		now:        time.Now,
	}, nil
}

// WorstCaseLatency is the time a compile takes when every strategy times out.
func (o *Orchestrator) WorstCaseLatency() time.Duration {
	var total time.Duration
	for _, s := range o.strategies {
		total += s.Timeout()
	}
	return total
}

// Strategies lists the configured strategy names in order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		names[i] = s.Name()
	}
	return names
}

// Compile renders the requester's live document. The requester must be an
// attached participant; otherwise the source's error is returned and no job is
// created. When every strategy fails the job ends in StatusFailure, the error
// wraps ErrCompilationFailed and nothing is written to the artifact store.
func (o *Orchestrator) Compile(ctx context.Context, req Request) (*Job, error) {
	content, err := o.source.LiveContent(req.DocumentID, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	job := &Job{
		ID:            uuid.NewString(),
		DocumentID:    req.DocumentID,
		ParticipantID: req.ParticipantID,
		Status:        StatusIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.transition(ctx, job, StatusCompiling, "")
	logger.Infof("compile: job %s started for document %s", job.ID, job.DocumentID)

	var failures error
	for _, s := range o.strategies {
		pdf, err := o.attempt(ctx, s, req.DocumentID, content)
		if err != nil {
			logger.Warnf("compile: job %s strategy %s failed: %v", job.ID, s.Name(), err)
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		ref, err := o.artifacts.Put(ctx, req.DocumentID, job.ID, pdf)
		if err != nil {
			logger.Errorf("compile: job %s could not store artifact: %v", job.ID, err)
			o.transition(ctx, job, StatusFailure, "Failed to save PDF")
			return job, fmt.Errorf("%w: store artifact: %v", ErrCompilationFailed, err)
		}
		job.Strategy = s.Name()
		job.ArtifactURL = ref
		o.transition(ctx, job, StatusSuccess, "Document compiled successfully")
		logger.Infof("compile: job %s succeeded with %s", job.ID, s.Name())
		return job, nil
	}

	n := len(multierr.Errors(failures))
	o.transition(ctx, job, StatusFailure, "Compilation failed. Check LaTeX syntax.")
	logger.Errorf("compile: job %s failed after %d strategies: %s", job.ID, n, describeFailures(failures))
	return job, fmt.Errorf("%w: all %d rendering strategies failed", ErrCompilationFailed, n)
}

// describeFailures flattens the per-strategy errors into one log line.
func describeFailures(failures error) string {
	errs := multierr.Errors(failures)
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// attempt runs one strategy under its own timeout. Panics count as failures.
func (o *Orchestrator) attempt(ctx context.Context, s Strategy, documentID, content string) (pdf []byte, err error) {
	actx, cancel := context.WithTimeout(ctx, s.Timeout())
	defer cancel()
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			pdf, err = nil, fmt.Errorf("panic: %v", r)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.CompileAttempts.WithLabelValues(s.Name(), outcome).Inc()
		metrics.CompileDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	}()

	pdf, err = s.Render(actx, documentID, content)
	if err != nil {
		if actx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("timed out after %s: %w", s.Timeout(), err)
		}
		return nil, err
	}
	if err := s.Validate(pdf); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	return pdf, nil
}

func (o *Orchestrator) transition(ctx context.Context, job *Job, to Status, msg string) {
	job.Status = to
	job.Message = msg
	job.UpdatedAt = o.now()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.jobs.Save(sctx, job); err != nil {
		logger.Warnf("compile: save job %s (%s): %v", job.ID, to, err)
	}
}

// Job returns a recorded job.
func (o *Orchestrator) Job(ctx context.Context, jobID string) (*Job, error) {
	return o.jobs.Get(ctx, jobID)
}
