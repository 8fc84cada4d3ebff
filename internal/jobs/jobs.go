// Package jobs defines the durable queue contract between upload admission
// and the transcode workers.
//
// A task is enqueued once per ingestion record with a deterministic task ID,
// so redelivery and duplicate enqueue attempts collapse onto the same queue
// entry. The retry policy lives here so the enqueue side and the worker side
// agree on attempt budgets and backoff shape.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"

	"waveline/internal/config"
)

// TypeTranscodeRecording is the queue task type for a full transcode job.
const TypeTranscodeRecording = "transcode:recording"

// TranscodePayload is the task body carried through the queue.
type TranscodePayload struct {
	RecordID    string `json:"record_id"`
	OriginalKey string `json:"original_key"`
}

// NewTranscodeTask builds the asynq task for a record.
func NewTranscodeTask(recordID, originalKey string) (*asynq.Task, error) {
	if recordID == "" {
		return nil, errors.New("record id required")
	}
	payload, err := json.Marshal(TranscodePayload{RecordID: recordID, OriginalKey: originalKey})
	if err != nil {
		return nil, fmt.Errorf("marshal transcode payload: %w", err)
	}
	return asynq.NewTask(TypeTranscodeRecording, payload), nil
}

// ParseTranscodePayload decodes a task body.
func ParseTranscodePayload(task *asynq.Task) (TranscodePayload, error) {
	var payload TranscodePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TranscodePayload{}, fmt.Errorf("decode transcode payload: %w", err)
	}
	if payload.RecordID == "" {
		return TranscodePayload{}, errors.New("transcode payload missing record id")
	}
	return payload, nil
}

// TaskID returns the deterministic queue identity for a record's transcode
// job. Enqueueing the same record twice hits the same queue entry.
func TaskID(recordID string) string {
	return "transcode:" + recordID
}

// Policy describes the retry budget and backoff shape for transcode jobs.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// PolicyFromConfig builds the retry policy from queue configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialDelay:      time.Duration(cfg.Queue.InitialDelaySeconds) * time.Second,
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
	}
}

// Delay returns the wait before retry number n (0-based: the delay after the
// first failed attempt is Delay(0)).
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(n))
	if delay > float64(time.Hour) {
		return time.Hour
	}
	return time.Duration(delay)
}

// RetryDelayFunc adapts the policy to asynq's retry hook.
func (p Policy) RetryDelayFunc(n int, _ error, _ *asynq.Task) time.Duration {
	return p.Delay(n)
}

// Enqueuer submits transcode jobs to the durable queue.
type Enqueuer struct {
	client    *asynq.Client
	policy    Policy
	retention time.Duration
}

// NewEnqueuer wraps an asynq client with the configured retry policy.
// Completed tasks are retained for a day so operators can inspect them.
func NewEnqueuer(client *asynq.Client, policy Policy) *Enqueuer {
	return &Enqueuer{client: client, policy: policy, retention: 24 * time.Hour}
}

// EnqueueTranscode places the record's transcode job on the queue. A task ID
// conflict means the job is already queued or running, which callers treat
// the same as a fresh enqueue.
func (e *Enqueuer) EnqueueTranscode(ctx context.Context, recordID, originalKey string) error {
	task, err := NewTranscodeTask(recordID, originalKey)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(recordID)),
		asynq.MaxRetry(e.policy.MaxAttempts-1),
		asynq.Retention(e.retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue transcode for %s: %w", recordID, err)
	}
	return nil
}
