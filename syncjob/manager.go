package syncjob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// PassRunner runs one reconciliation pass.
type PassRunner interface {
	Run(ctx context.Context, connectionID uint, progress chan<- Progress) (Summary, error)
}

// Dispatcher hands a queued job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Manager owns the job lifecycle. At most one job per connection is pending
// or running; triggering again returns that job.
type Manager struct {
	runner     PassRunner
	jobs       JobStore
	locker     Locker
	dispatcher Dispatcher
	lockTTL    time.Duration
	logger     *logrus.Logger
	now        func() time.Time

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewManager(runner PassRunner, jobs JobStore, locker Locker, policy config.SyncPolicy, logger *logrus.Logger) *Manager {
	return &Manager{
		runner:  runner,
		jobs:    jobs,
		locker:  locker,
		lockTTL: policy.LockTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// SetDispatcher routes new jobs through d instead of a local goroutine.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

func (m *Manager) Jobs() JobStore {
	return m.jobs
}

// Trigger queues a pass for the connection and returns the job id.
func (m *Manager) Trigger(ctx context.Context, connectionID uint) (string, error) {
	v, err, _ := m.group.Do(strconv.FormatUint(uint64(connectionID), 10), func() (interface{}, error) {
		return m.trigger(ctx, connectionID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) trigger(ctx context.Context, connectionID uint) (string, error) {
	if id, ok, err := m.runningJob(ctx, connectionID); err != nil || ok {
		return id, err
	}

	job := newJob(connectionID, m.now())
	claimed, err := m.jobs.ClaimActive(ctx, connectionID, job.ID, m.lockTTL)
	if err != nil {
		return "", fmt.Errorf("claim connection %d: %w", connectionID, err)
	}
	if !claimed {
		id, _, err := m.jobs.Active(ctx, connectionID)
		return id, err
	}
	if err := m.jobs.Save(ctx, job); err != nil {
		_ = m.jobs.ReleaseActive(ctx, connectionID, job.ID)
		return "", err
	}

	if m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, job); err != nil {
			m.finish(ctx, job, nil, fmt.Errorf("dispatch: %w", err))
			return "", err
		}
		return job.ID, nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.Execute(context.Background(), job)
		if errors.Is(err, ErrLocked) {
			m.finish(context.Background(), job, nil, err)
			return
		}
		config.LogError(m.logger, "syncjob", "Trigger", "run sync job", job.ID, err)
	}()
	return job.ID, nil
}

// runningJob returns the connection's active job. An active marker that
// points at a finished or expired job is cleared.
func (m *Manager) runningJob(ctx context.Context, connectionID uint) (string, bool, error) {
	id, ok, err := m.jobs.Active(ctx, connectionID)
	if err != nil || !ok {
		return "", false, err
	}
	job, err := m.jobs.Get(ctx, id)
	if err == nil && !job.Status.Finished() {
		return id, true, nil
	}
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return "", false, err
	}
	return "", false, m.jobs.ReleaseActive(ctx, connectionID, id)
}

// Wait blocks until every locally started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// ExecuteByID runs a job queued elsewhere, as delivered by the push endpoint.
// Finished jobs are not run again.
func (m *Manager) ExecuteByID(ctx context.Context, jobID string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Finished() {
		return nil
	}
	err = m.Execute(ctx, job)
	if errors.Is(err, ErrLocked) {
		// a redelivery of a job that already started is left to its runner
		if current, getErr := m.jobs.Get(ctx, jobID); getErr == nil && current.Status == StatusPending {
			m.finish(ctx, current, nil, err)
		}
	}
	return err
}

// Execute runs the job under the connection lock and records its progress.
func (m *Manager) Execute(ctx context.Context, job Job) error {
	release, err := m.locker.Lock(ctx, lockKey(job.ConnectionID), m.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			// another process is already running a pass for this connection
			return err
		}
		m.finish(ctx, job, nil, err)
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			config.LogError(m.logger, "syncjob", "Execute", "release lock", job.ConnectionID, err)
		}
	}()

	job.Status = StatusRunning
	job.Message = "running"
	job.UpdatedAt = m.now()
	m.save(ctx, job)

	progress := make(chan Progress, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range progress {
			job.Step = ev.Step
			job.Message = fmt.Sprintf("%s %s (%d/%d)", ev.Step, ev.Message, ev.Index, ev.Total)
			job.UpdatedAt = m.now()
			m.save(ctx, job)
		}
	}()

	summary, runErr := m.runner.Run(ctx, job.ConnectionID, progress)
	close(progress)
	<-forwarded

	m.finish(ctx, job, &summary, runErr)
	return runErr
}

func (m *Manager) finish(ctx context.Context, job Job, summary *Summary, err error) {
	job.Result = summary
	job.UpdatedAt = m.now()
	if err != nil {
		job.Status = StatusError
		job.Message = err.Error()
	} else {
		job.Status = StatusDone
		job.Message = "synced"
		if summary != nil {
			job.Message = fmt.Sprintf("synced %d records", summary.RecordCount)
			if n := len(summary.Warnings); n > 0 {
				job.Message += fmt.Sprintf(" with %d warnings", n)
			}
		}
	}
	// the pass may have been cancelled; the final status must still land
	ctx = context.WithoutCancel(ctx)
	m.save(ctx, job)
	if err := m.jobs.ReleaseActive(ctx, job.ConnectionID, job.ID); err != nil {
		config.LogError(m.logger, "syncjob", "finish", "release active job", job.ID, err)
	}
}

func (m *Manager) save(ctx context.Context, job Job) {
	if err := m.jobs.Save(ctx, job); err != nil {
		config.LogError(m.logger, "syncjob", "save", "save job status", job.ID, err)
	}
}
