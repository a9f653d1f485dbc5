// Package queue names the background tasks BookWise schedules and hides
// whether they run on Redis through asynq or in-process.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// SendEmailTask delivers one rendered e-mail. It is never retried so a
	// recipient gets at most one copy.
	SendEmailTask = "email:send"
	// GenerateReceiptTask renders and stores the PDF receipt of a loan.
	GenerateReceiptTask = "receipt:generate"
	// DueReminderTask runs one stage of the due-date reminder sequence.
	DueReminderTask = "borrow:due-reminder"
)

// EmailPayload is a rendered message ready for the sender.
type EmailPayload struct {
	Event   string `json:"event"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// ReceiptPayload identifies the loan whose receipt must be generated.
type ReceiptPayload struct {
	RecordID string `json:"record_id"`
}

// ReminderPayload identifies a loan and the reminder stage to run.
type ReminderPayload struct {
	RecordID string `json:"record_id"`
	Stage    int    `json:"stage"`
}

// Job is a task plus its scheduling options.
type Job struct {
	Task      *asynq.Task
	ProcessAt time.Time
	MaxRetry  int
}

// Enqueuer accepts jobs for background execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// NewEmailJob builds an at-most-once e-mail job.
func NewEmailJob(p EmailPayload) (Job, error) {
	task, err := newTask(SendEmailTask, p)
	if err != nil {
		return Job{}, err
	}
	return Job{Task: task, MaxRetry: 0}, nil
}

// NewReceiptJob builds a receipt generation job.
func NewReceiptJob(p ReceiptPayload) (Job, error) {
	task, err := newTask(GenerateReceiptTask, p)
	if err != nil {
		return Job{}, err
	}
	return Job{Task: task, MaxRetry: 3}, nil
}

// NewReminderJob builds a reminder stage scheduled at processAt.
func NewReminderJob(p ReminderPayload, processAt time.Time) (Job, error) {
	task, err := newTask(DueReminderTask, p)
	if err != nil {
		return Job{}, err
	}
	return Job{Task: task, ProcessAt: processAt, MaxRetry: 3}, nil
}

func newTask(name string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return asynq.NewTask(name, data), nil
}

// Decode unmarshals a task payload.
func Decode(task *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(task.Payload(), v); err != nil {
		return fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	return nil
}

// Client enqueues jobs on Redis through asynq.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// Enqueue submits the job with its retry and schedule options.
func (c *Client) Enqueue(ctx context.Context, job Job) error {
	opts := []asynq.Option{asynq.MaxRetry(job.MaxRetry)}
	if !job.ProcessAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(job.ProcessAt))
	}
	if _, err := c.client.EnqueueContext(ctx, job.Task, opts...); err != nil {
		return fmt.Errorf("enqueue %s task: %w", job.Task.Type(), err)
	}
	return nil
}
