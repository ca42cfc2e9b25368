package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

const defaultWorkers = 4

// Runner executes one kind of job. Runners are registered with the gateway at
// construction; a Start for a kind with no runner is a validation error.
type Runner interface {
	Kind() model.JobKind
	Run(ctx context.Context, job *model.Job) (*RunResult, error)
}

// RunResult is what a runner reports on success. Payload is marshaled into
// the job's result column and surfaced verbatim by Poll.
type RunResult struct {
	Payload     any
	Model       string
	Cost        float64
	ResultCount int
}

// Store is the subset of the persistence interface the gateway needs.
type Store interface {
	CreateJob(ctx context.Context, job model.Job) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJob(ctx context.Context, jobID string, params store.UpdateJobParams) (bool, error)
}

// PollStatus is the poll projection of a job row. Poll never fails hard: an
// unknown or not-yet-visible key reads as pending, a malformed key as error.
type PollStatus struct {
	Status model.JobStatus `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// startParams is the minimal shape every job's params must carry. The rest of
// the params document is runner-specific and passed through untouched.
type startParams struct {
	Project    string `json:"project"`
	Entity     string `json:"entity"`
	SourceType string `json:"source_type"`
	EvidenceID string `json:"evidence_id"`
}

// Gateway runs async jobs on bounded background workers. Start inserts the
// job row and returns its id immediately; execution happens on a goroutine
// gated by a weighted semaphore, so acceptance is unbounded while execution
// is not. Poll reads progress; Close drains in-flight runners.
type Gateway struct {
	store   Store
	runners map[model.JobKind]Runner
	sem     *semaphore.Weighted

	runCtx context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New returns a Gateway executing at most workers jobs concurrently.
func New(st Store, workers int, runners ...Runner) *Gateway {
	if workers <= 0 {
		workers = defaultWorkers
	}
	m := make(map[model.JobKind]Runner, len(runners))
	for _, r := range runners {
		m[r.Kind()] = r
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		store:   st,
		runners: m,
		sem:     semaphore.NewWeighted(int64(workers)),
		runCtx:  ctx,
		cancel:  cancel,
	}
}

// Start validates the request, inserts a pending job row and schedules it.
// The returned job id is immediately pollable. Runner failures are recorded
// on the job row, never returned here.
func (g *Gateway) Start(ctx context.Context, kind model.JobKind, params json.RawMessage) (string, error) {
	if !kind.Valid() {
		return "", eris.Wrapf(model.ErrValidation, "jobs: unknown kind %q", kind)
	}
	runner, ok := g.runners[kind]
	if !ok {
		return "", eris.Wrapf(model.ErrValidation, "jobs: no runner registered for kind %q", kind)
	}

	var sp startParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &sp); err != nil {
			return "", eris.Wrap(model.ErrValidation, "jobs: params must be a JSON object")
		}
	}
	if sp.Project == "" {
		return "", eris.Wrap(model.ErrValidation, "jobs: params.project is required")
	}
	if sp.SourceType == "" {
		sp.SourceType = "api"
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", eris.New("jobs: gateway is closed")
	}
	g.wg.Add(1)
	g.mu.Unlock()

	job, err := g.store.CreateJob(ctx, model.Job{
		Project:    sp.Project,
		Entity:     sp.Entity,
		Kind:       kind,
		SourceType: sp.SourceType,
		SourceRef:  sp.EvidenceID,
		Params:     params,
	})
	if err != nil {
		g.wg.Done()
		return "", err
	}

	zap.L().Info("job started",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.String("project", sp.Project))

	go g.execute(job.ID, runner)
	return job.ID, nil
}

// Poll projects a job row onto the poll contract. It never mutates and never
// reports not-found: a well-formed unknown key is pending (the row may not be
// visible yet), a malformed key is an error status.
func (g *Gateway) Poll(ctx context.Context, jobKey string) PollStatus {
	if uuid.Validate(jobKey) != nil {
		return PollStatus{Status: model.JobStatusError, Error: "invalid job key"}
	}

	job, err := g.store.GetJob(ctx, jobKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("poll read failed", zap.String("job_key", jobKey), zap.Error(err))
		}
		return PollStatus{Status: model.JobStatusPending}
	}
	return PollStatus{Status: job.Status, Result: job.Result, Error: job.ErrorMessage}
}

// Close stops accepting new jobs and waits for in-flight runners. If ctx
// expires first, the runners' context is cancelled and Close waits for them
// to record their failure before returning.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		<-done
		return eris.Wrap(ctx.Err(), "jobs: close")
	}
}

func (g *Gateway) execute(jobID string, r Runner) {
	defer g.wg.Done()
	log := zap.L().With(zap.String("job_id", jobID), zap.String("kind", string(r.Kind())))

	if err := g.sem.Acquire(g.runCtx, 1); err != nil {
		g.fail(jobID, 0, eris.Wrap(err, "jobs: gateway shut down before execution"), log)
		return
	}
	defer g.sem.Release(1)

	job, err := g.store.GetJob(g.runCtx, jobID)
	if err != nil {
		log.Error("load job for execution", zap.Error(err))
		return
	}

	running := model.JobStatusRunning
	updated, err := g.store.UpdateJob(g.runCtx, jobID, store.UpdateJobParams{Status: &running})
	if err != nil {
		log.Error("mark job running", zap.Error(err))
		return
	}
	if !updated {
		// Externally moved to a terminal state already; nothing to run.
		log.Warn("job no longer pending, skipping")
		return
	}

	started := time.Now()
	res, err := r.Run(g.runCtx, job)
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		log.Warn("job failed", zap.Int64("duration_ms", elapsed), zap.Error(err))
		g.fail(jobID, elapsed, err, log)
		return
	}
	g.complete(jobID, elapsed, res, log)
}

// fail records a terminal error on the job row. It writes with a background
// context: the run context may be the reason the job failed.
func (g *Gateway) fail(jobID string, duration int64, runErr error, log *zap.Logger) {
	status := model.JobStatusError
	msg := runErr.Error()
	now := time.Now().UTC()

	params := store.UpdateJobParams{Status: &status, ErrorMessage: &msg, CompletedAt: &now}
	if duration > 0 {
		params.Duration = &duration
	}

	updated, err := g.store.UpdateJob(context.Background(), jobID, params)
	if err != nil {
		log.Error("record job failure", zap.Error(err))
		return
	}
	if !updated {
		log.Warn("job failure not recorded; row already terminal")
	}
}

func (g *Gateway) complete(jobID string, duration int64, res *RunResult, log *zap.Logger) {
	status := model.JobStatusCompleted
	now := time.Now().UTC()
	params := store.UpdateJobParams{Status: &status, Duration: &duration, CompletedAt: &now}

	if res != nil {
		if res.Payload != nil {
			data, err := json.Marshal(res.Payload)
			if err != nil {
				g.fail(jobID, duration, eris.Wrap(err, "jobs: marshal result payload"), log)
				return
			}
			params.Result = data
		}
		if res.Model != "" {
			params.Model = &res.Model
		}
		if res.Cost > 0 {
			params.Cost = &res.Cost
		}
		params.ResultCount = &res.ResultCount
	}

	updated, err := g.store.UpdateJob(context.Background(), jobID, params)
	if err != nil {
		log.Error("record job completion", zap.Error(err))
		return
	}
	if !updated {
		log.Warn("job completion not recorded; row already terminal")
		return
	}
	log.Info("job completed",
		zap.Int64("duration_ms", duration),
		zap.Int("result_count", resultCount(res)))
}

func resultCount(res *RunResult) int {
	if res == nil {
		return 0
	}
	return res.ResultCount
}
