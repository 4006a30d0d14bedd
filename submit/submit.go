// Package submit hands planned tasks to the job manager in fixed size batches.
package submit

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/pdok/tasker/metrics"
)

const (
	OpCreate = "create"
	OpAppend = "append"
)

var ErrInvalidBatchSize = errors.New("invalid task batch size")

// Job is the job the tasks of one planning run belong to.
type Job struct {
	Type         string `json:"type"`
	ResourceID   string `json:"resourceId"`
	Version      string `json:"version"`
	ProducerName string `json:"producerName,omitempty"`
	Parameters   any    `json:"parameters,omitempty"`
}

// Task is one task of a job, Parameters is one of the planners' task parameter records.
type Task struct {
	Type       string `json:"type"`
	Parameters any    `json:"parameters"`
}

// JobClient is the job manager as seen by the Submitter.
type JobClient interface {
	// CreateJob creates the job together with its first tasks and returns the job's id.
	CreateJob(ctx context.Context, job Job, tasks []Task) (string, error)
	AppendTasks(ctx context.Context, jobID string, tasks []Task) error
	MarkJobFailed(ctx context.Context, jobID string, reason string) error
}

// SubmissionError is a rejected create or append call. JobID is empty when creating the job failed.
type SubmissionError struct {
	JobID string
	Op    string
	Err   error
}

func (e *SubmissionError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("could not %s job: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("could not %s tasks of job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submitter sends tasks to a JobClient, batchSize tasks per call.
type Submitter struct {
	client    JobClient
	batchSize int
	logger    zerolog.Logger
}

func NewSubmitter(client JobClient, batchSize int, logger zerolog.Logger) (*Submitter, error) {
	if client == nil {
		return nil, errors.New("no job client")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidBatchSize, batchSize)
	}
	return &Submitter{client: client, batchSize: batchSize, logger: logger}, nil
}

// Submit consumes the task parameters and submits them in order. The first full batch (or the only,
// partial one) creates the job, every next batch is appended to it. When appending fails the job is marked failed.
// Submit returns the id of the created job, empty when there were no tasks or creating the job failed.
func Submit[T any](ctx context.Context, s *Submitter, job Job, taskType string, params iter.Seq[T]) (string, error) {
	run := &submission{Submitter: s, job: job}
	total := 0
	defer func() { metrics.ObserveTasksPlanned(taskType, total) }()

	buffer := make([]Task, 0, s.batchSize)
	for p := range params {
		buffer = append(buffer, Task{Type: taskType, Parameters: p})
		total++
		if len(buffer) < s.batchSize {
			continue
		}
		if err := run.flush(ctx, buffer); err != nil {
			return run.jobID, err
		}
		buffer = make([]Task, 0, s.batchSize)
	}
	if len(buffer) > 0 {
		if err := run.flush(ctx, buffer); err != nil {
			return run.jobID, err
		}
	}

	if run.jobID == "" {
		s.logger.Warn().Str("jobType", job.Type).Str("resourceId", job.ResourceID).Msg("no tasks planned, no job created")
	} else {
		s.logger.Info().Str("jobId", run.jobID).Int("tasks", total).Int("batches", run.batches).Msg("submitted all tasks")
	}
	return run.jobID, nil
}

type submission struct {
	*Submitter
	job     Job
	jobID   string
	batches int
}

func (r *submission) flush(ctx context.Context, tasks []Task) error {
	if r.jobID == "" {
		jobID, err := r.client.CreateJob(ctx, r.job, tasks)
		metrics.ObserveBatchSubmitted(OpCreate, err)
		if err != nil {
			return &SubmissionError{Op: OpCreate, Err: err}
		}
		r.jobID = jobID
		r.batches++
		r.logger.Info().Str("jobId", jobID).Str("jobType", r.job.Type).Int("tasks", len(tasks)).Msg("created job")
		return nil
	}

	err := r.client.AppendTasks(ctx, r.jobID, tasks)
	metrics.ObserveBatchSubmitted(OpAppend, err)
	if err != nil {
		if markErr := r.client.MarkJobFailed(ctx, r.jobID, err.Error()); markErr != nil {
			r.logger.Error().Err(markErr).Str("jobId", r.jobID).Msg("could not mark job as failed")
		}
		return &SubmissionError{JobID: r.jobID, Op: OpAppend, Err: err}
	}
	r.batches++
	r.logger.Debug().Str("jobId", r.jobID).Int("tasks", len(tasks)).Int("batch", r.batches).Msg("appended tasks")
	return nil
}
