// Package worker holds the background task handlers. The same mux is served
// by the asynq worker binary and by the in-process pool.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/notify"
	"github.com/dharsanguruparan/BookWise/internal/queue"
	"github.com/dharsanguruparan/BookWise/internal/receipt"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo     *repository.Store
	receipts *receipt.Materializer
	notifier *notify.Dispatcher
	sender   notify.Sender
	logger   *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo *repository.Store, receipts *receipt.Materializer, notifier *notify.Dispatcher, sender notify.Sender, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{repo: repo, receipts: receipts, notifier: notifier, sender: sender, logger: logger}
}

// Handler registers every task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SendEmailTask, p.handleEmail)
	mux.HandleFunc(queue.GenerateReceiptTask, p.handleReceipt)
	mux.HandleFunc(queue.DueReminderTask, p.handleReminder)
	return mux
}

func (p *Processor) handleEmail(ctx context.Context, task *asynq.Task) error {
	var payload queue.EmailPayload
	if err := queue.Decode(task, &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(zap.String("event", payload.Event), zap.String("to", payload.To))
	if err := p.sender.Send(ctx, payload.To, payload.Subject, payload.HTML); err != nil {
		// A failed send is never retried: the relay may already have
		// accepted the message.
		log.Error("email delivery failed", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Info("email delivered")
	return nil
}

func (p *Processor) handleReceipt(ctx context.Context, task *asynq.Task) error {
	var payload queue.ReceiptPayload
	if err := queue.Decode(task, &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	rec, ok, err := p.loadRecord(ctx, payload.RecordID)
	if err != nil || !ok {
		return err
	}
	if _, err := p.receipts.Write(ctx, rec); err != nil {
		p.logger.Warn("receipt generation failed", zap.String("record_id", rec.ID), zap.Error(err))
		return err
	}
	p.notifier.NotifyUser(ctx, notify.EventReceiptReady, rec.User, notify.Data{
		BookTitle:  bookTitle(rec),
		BorrowDate: rec.BorrowDate,
		DueDate:    rec.DueDate,
		ReceiptURL: p.receipts.ShareURL(rec.ReceiptCode),
	})
	return nil
}

func (p *Processor) handleReminder(ctx context.Context, task *asynq.Task) error {
	var payload queue.ReminderPayload
	if err := queue.Decode(task, &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	rec, ok, err := p.loadRecord(ctx, payload.RecordID)
	if err != nil || !ok {
		return err
	}
	log := p.logger.With(zap.String("record_id", rec.ID), zap.Int("stage", payload.Stage))
	if rec.Status != model.StatusBorrowed {
		log.Info("reminder sequence stopped: loan closed")
		return nil
	}
	p.notifier.NotifyUser(ctx, notify.EventBookDueReminder, rec.User, notify.Data{
		BookTitle:  bookTitle(rec),
		BorrowDate: rec.BorrowDate,
		DueDate:    rec.DueDate,
	})
	if payload.Stage < notify.StageAfterDue {
		p.notifier.ScheduleReminder(ctx, rec, payload.Stage+1)
	}
	return nil
}

// loadRecord reports ok=false without error when the record is gone, which
// ends the task without retries.
func (p *Processor) loadRecord(ctx context.Context, id string) (*model.BorrowRecord, bool, error) {
	rec, err := p.repo.GetRecord(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		p.logger.Warn("task skipped: record not found", zap.String("record_id", id))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load record %s: %w", id, err)
	}
	return rec, true, nil
}

func bookTitle(rec *model.BorrowRecord) string {
	if rec.Book == nil {
		return ""
	}
	return rec.Book.Title
}
