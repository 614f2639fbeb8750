package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job tracks one model through the pipeline stages.
type Job struct {
	ID          string
	Model       string
	Stage       string
	Status      JobStatus
	StartTime   time.Time
	EndTime     *time.Time
	Elapsed     time.Duration
	Error       error
	Description string
	Logs        []string
	cancelFunc  context.CancelFunc
	mu          sync.RWMutex
}

type Manager struct {
	jobs  map[string]*Job
	order []string
	mu    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

// CreateJob registers a pending job and derives a cancellable context for
// it from parent.
func (m *Manager) CreateJob(parent context.Context, model, description string) (*Job, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:          uuid.NewString(),
		Model:       model,
		Status:      JobPending,
		StartTime:   time.Now(),
		Description: description,
		Logs:        []string{},
		cancelFunc:  cancel,
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	return job, ctx
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns jobs in creation order.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.jobs[id])
	}
	return jobs
}

// FindByModel returns the most recent job for model.
func (m *Manager) FindByModel(model string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		if job := m.jobs[m.order[i]]; job.Model == model {
			return job, true
		}
	}
	return nil, false
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.Status != JobRunning && job.Status != JobPending {
		return fmt.Errorf("job %s is not running", jobID)
	}

	job.cancelFunc()
	job.Status = JobCancelled
	now := time.Now()
	job.EndTime = &now
	return nil
}

// Counts returns how many jobs are in each status.
func (m *Manager) Counts() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	for _, job := range m.ListJobs() {
		counts[job.GetStatus()]++
	}
	return counts
}

// StartStage marks the job running in stage.
func (j *Job) StartStage(stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.Status = JobRunning
	j.appendLog("stage " + stage + " started")
}

func (j *Job) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobCompleted
	j.finish()
	j.appendLog("completed")
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLog(message)
}

func (j *Job) appendLog(message string) {
	timestamp := time.Now().Format("15:04:05")
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

// SetError fails the job in its current stage.
func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = err
	j.Status = JobFailed
	j.finish()
	j.appendLog(fmt.Sprintf("failed in %s: %v", j.Stage, err))
}

func (j *Job) finish() {
	now := time.Now()
	j.EndTime = &now
	if j.cancelFunc != nil {
		j.cancelFunc()
	}
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *Job) GetStage() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage
}

func (j *Job) GetError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Error
}

// AddElapsed adds stage work time. Time the model spends queued behind
// other models is not counted.
func (j *Job) AddElapsed(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Elapsed += d
}

func (j *Job) GetElapsed() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Elapsed
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return logs
}
