// Package notify renders member-facing e-mails and hands them to the queue.
// Dispatch is fire-and-forget: failures are logged and counted, never
// returned to the operation that triggered them.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/circulation"
	"github.com/dharsanguruparan/BookWise/internal/metrics"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/queue"
)

// Reminder stages: three days before the due date, on it, and one day after.
const (
	StageBeforeDue = 1
	StageOnDue     = 2
	StageAfterDue  = 3
)

// Options tunes a Dispatcher.
type Options struct {
	AppURL       string
	ReminderHour int
	Location     *time.Location
	Now          func() time.Time
}

// Dispatcher renders and enqueues notifications.
type Dispatcher struct {
	queue   queue.Enqueuer
	metrics *metrics.Metrics
	logger  *zap.Logger

	appURL       string
	reminderHour int
	loc          *time.Location
	now          func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(q queue.Enqueuer, m *metrics.Metrics, logger *zap.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		queue:        q,
		metrics:      m,
		logger:       logger,
		appURL:       opts.AppURL,
		reminderHour: opts.ReminderHour,
		loc:          opts.Location,
		now:          opts.Now,
	}
}

// Notify renders ev and enqueues it for delivery to the given address.
func (d *Dispatcher) Notify(ctx context.Context, ev Event, to string, data Data) {
	log := d.logger.With(zap.String("event", string(ev)), zap.String("to", to))
	if to == "" {
		log.Warn("notification skipped: no recipient")
		d.metrics.Notification(string(ev), "skipped")
		return
	}
	if data.AppURL == "" {
		data.AppURL = d.appURL
	}
	msg, err := Render(ev, data)
	if err != nil {
		log.Error("render notification", zap.Error(err))
		d.metrics.Notification(string(ev), "error")
		return
	}
	job, err := queue.NewEmailJob(queue.EmailPayload{Event: string(ev), To: to, Subject: msg.Subject, HTML: msg.HTML})
	if err == nil {
		err = d.queue.Enqueue(ctx, job)
	}
	if err != nil {
		log.Error("enqueue notification", zap.Error(err))
		d.metrics.Notification(string(ev), "error")
		return
	}
	d.metrics.Notification(string(ev), "queued")
}

// NotifyUser is Notify addressed to a user, filling in the student name.
func (d *Dispatcher) NotifyUser(ctx context.Context, ev Event, user *model.User, data Data) {
	if user == nil {
		return
	}
	data.StudentName = user.FullName
	d.Notify(ctx, ev, user.Email, data)
}

// ReminderTime returns when a reminder stage for a loan due on dueDate
// should run. Stages never run before now.
func (d *Dispatcher) ReminderTime(stage int, dueDate time.Time) time.Time {
	day := dueDate
	switch stage {
	case StageBeforeDue:
		day = dueDate.AddDate(0, 0, -3)
	case StageAfterDue:
		day = dueDate.AddDate(0, 0, 1)
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), d.reminderHour, 0, 0, 0, d.loc)
	if now := d.now(); at.Before(now) {
		return now
	}
	return at
}

// ScheduleReminder enqueues one reminder stage for a record.
func (d *Dispatcher) ScheduleReminder(ctx context.Context, rec *model.BorrowRecord, stage int) {
	at := d.ReminderTime(stage, rec.DueDate)
	job, err := queue.NewReminderJob(queue.ReminderPayload{RecordID: rec.ID, Stage: stage}, at)
	if err == nil {
		err = d.queue.Enqueue(ctx, job)
	}
	if err != nil {
		d.logger.Error("schedule due reminder",
			zap.String("record_id", rec.ID),
			zap.Int("stage", stage),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("due reminder scheduled",
		zap.String("record_id", rec.ID),
		zap.Int("stage", stage),
		zap.Time("process_at", at),
	)
}

// ScheduleDueReminders starts the reminder sequence for a new loan. Each
// stage schedules the next one after checking the loan is still open.
func (d *Dispatcher) ScheduleDueReminders(ctx context.Context, rec *model.BorrowRecord) {
	d.ScheduleReminder(ctx, rec, StageBeforeDue)
}

// ScheduleReceipt enqueues receipt generation for a record.
func (d *Dispatcher) ScheduleReceipt(ctx context.Context, rec *model.BorrowRecord) {
	job, err := queue.NewReceiptJob(queue.ReceiptPayload{RecordID: rec.ID})
	if err == nil {
		err = d.queue.Enqueue(ctx, job)
	}
	if err != nil {
		d.logger.Error("schedule receipt", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// Observe runs the post-commit workflow of a circulation event.
func (d *Dispatcher) Observe(ctx context.Context, ev circulation.Event) {
	rec := ev.Record
	data := Data{DueDate: rec.DueDate, BorrowDate: rec.BorrowDate}
	if rec.Book != nil {
		data.BookTitle = rec.Book.Title
	}
	switch ev.Kind {
	case circulation.EventBorrowed:
		d.ScheduleReceipt(ctx, rec)
		d.ScheduleDueReminders(ctx, rec)
		if ev.Notify {
			d.NotifyUser(ctx, EventBookBorrowed, rec.User, data)
		}
	case circulation.EventReturned:
		if ev.Notify {
			data.IsLate = ev.IsLate
			data.DaysLate = ev.DaysLate
			d.NotifyUser(ctx, EventBookReturned, rec.User, data)
		}
	}
}
