package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/circulation"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/queue"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, j := range f.jobs {
		out = append(out, j.Task.Type())
	}
	return out
}

func TestRenderEveryEvent(t *testing.T) {
	data := Data{
		StudentName: "Ada",
		BookTitle:   "Dune",
		BorrowDate:  model.Date(2024, time.January, 1),
		DueDate:     model.Date(2024, time.January, 15),
		NewRole:     "ADMIN",
		ReceiptURL:  "https://library.example.edu/receipts/ABC",
	}
	for ev := range specs {
		msg, err := Render(ev, data)
		require.NoError(t, err, ev)
		assert.NotEmpty(t, msg.Subject, ev)
		assert.Contains(t, msg.HTML, "Hi Ada,", ev)
	}

	msg, err := Render(EventBookBorrowed, data)
	require.NoError(t, err)
	assert.Equal(t, "You've Borrowed Dune!", msg.Subject)
	assert.Contains(t, msg.HTML, "January 15, 2024")

	_, err = Render(Event("Nope"), data)
	assert.Error(t, err)
}

func TestRenderEscapesInput(t *testing.T) {
	msg, err := Render(EventBookReturned, Data{StudentName: "<b>Eve</b>", BookTitle: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
}

func TestRenderReturnedBranches(t *testing.T) {
	onTime, err := Render(EventBookReturned, Data{BookTitle: "Dune"})
	require.NoError(t, err)
	assert.Contains(t, onTime.HTML, "on time")

	late, err := Render(EventBookReturned, Data{BookTitle: "Dune", IsLate: true, DaysLate: 3, DueDate: model.Date(2024, time.January, 10)})
	require.NoError(t, err)
	assert.Contains(t, late.HTML, "3 days after its due date of January 10, 2024")
}

func TestNotifySwallowsQueueErrors(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	d := NewDispatcher(q, nil, zap.NewNop(), Options{})
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), EventWelcome, "a@uni.edu", Data{StudentName: "Ada"})
	})
}

func TestNotifyEnqueuesOnce(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, nil, zap.NewNop(), Options{AppURL: "https://library.example.edu"})
	d.NotifyUser(context.Background(), EventAccountApproved, &model.User{FullName: "Ada", Email: "a@uni.edu"}, Data{})
	d.Notify(context.Background(), EventAccountApproved, "", Data{})

	require.Len(t, q.jobs, 1)
	assert.Equal(t, 0, q.jobs[0].MaxRetry)
	var p queue.EmailPayload
	require.NoError(t, queue.Decode(q.jobs[0].Task, &p))
	assert.Equal(t, "a@uni.edu", p.To)
	assert.Contains(t, p.HTML, "https://library.example.edu")
}

func TestReminderTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	d := NewDispatcher(&fakeQueue{}, nil, nil, Options{ReminderHour: 9, Location: loc, Now: func() time.Time { return now }})
	due := model.Date(2024, time.January, 15)

	assert.True(t, d.ReminderTime(StageBeforeDue, due).Equal(time.Date(2024, time.January, 12, 9, 0, 0, 0, loc)))
	assert.True(t, d.ReminderTime(StageOnDue, due).Equal(time.Date(2024, time.January, 15, 9, 0, 0, 0, loc)))
	assert.True(t, d.ReminderTime(StageAfterDue, due).Equal(time.Date(2024, time.January, 16, 9, 0, 0, 0, loc)))

	// A short loan whose first stage is already past runs immediately.
	assert.True(t, d.ReminderTime(StageBeforeDue, model.Date(2024, time.January, 2)).Equal(now))
}

func TestObserveBorrowAndReturn(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(q, nil, zap.NewNop(), Options{})
	rec := &model.BorrowRecord{
		ID:      "r1",
		DueDate: model.Date(2030, time.January, 15),
		Book:    &model.Book{Title: "Dune"},
		User:    &model.User{FullName: "Ada", Email: "a@uni.edu"},
	}
	ctx := context.Background()

	d.Observe(ctx, circulation.Event{Kind: circulation.EventBorrowed, Record: rec, Notify: true})
	assert.ElementsMatch(t, []string{queue.GenerateReceiptTask, queue.DueReminderTask, queue.SendEmailTask}, q.types())

	d.Observe(ctx, circulation.Event{Kind: circulation.EventReturned, Record: rec, Override: true, Notify: false})
	assert.Len(t, q.types(), 3)

	d.Observe(ctx, circulation.Event{Kind: circulation.EventReturned, Record: rec, Notify: true, IsLate: true, DaysLate: 2})
	assert.Len(t, q.types(), 4)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).Send(context.Background(), "a@uni.edu", "s", "<p>h</p>"))
}
