package scan

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/connectors/jobstore"
)

// Recorder persists the lifecycle of analysis jobs.
type Recorder interface {
	CreateJob(ctx context.Context, id, source string) error
	FinishJob(ctx context.Context, id, state string, stats []analysis.TypeStats) error
}

// Service runs analysis jobs in the background and records their results.
type Service struct {
	runner  *Runner
	store   Recorder
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(runner *Runner, store Recorder, timeout time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{runner: runner, store: store, timeout: timeout, ctx: ctx, cancel: cancel}
}

// Start registers a job for source and runs it asynchronously. It returns
// jobstore.ErrJobRunning while another job for the same source is active.
func (s *Service) Start(ctx context.Context, source string) (string, error) {
	source = NormalizeSource(source)
	id := uuid.NewString()
	if err := s.store.CreateJob(ctx, id, source); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(id, source)
	}()
	return id, nil
}

func (s *Service) run(id, source string) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	job, err := s.runner.Run(ctx, source)

	state := jobstore.StateFinished
	switch {
	case err == nil:
		log.Printf("analysis job %s finished source=%s files=%d size=%s", id, source, job.Files, humanize.IBytes(uint64(job.TotalBytes)))
	case IsCanceled(err):
		state = jobstore.StateCancelled
		log.Printf("analysis job %s cancelled source=%s: %v", id, source, err)
	default:
		state = jobstore.StateFailed
		log.Printf("analysis job %s failed source=%s: %v", id, source, err)
	}

	// the run context may be done already; recording must still happen
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.FinishJob(finishCtx, id, state, job.Stats); err != nil {
		log.Printf("analysis job %s: failed to record %s state: %v", id, state, err)
	}
}

// Wait blocks until every started job has been recorded.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels running jobs and waits for them to be recorded.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
