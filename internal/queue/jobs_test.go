package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJobIsNotRetried(t *testing.T) {
	job, err := NewEmailJob(EmailPayload{Event: "BookBorrowed", To: "a@uni.edu", Subject: "s", HTML: "<p>h</p>"})
	require.NoError(t, err)
	assert.Equal(t, SendEmailTask, job.Task.Type())
	assert.Equal(t, 0, job.MaxRetry)

	var p EmailPayload
	require.NoError(t, Decode(job.Task, &p))
	assert.Equal(t, "a@uni.edu", p.To)
}

func TestReminderJobCarriesSchedule(t *testing.T) {
	at := time.Date(2024, time.January, 7, 9, 0, 0, 0, time.UTC)
	job, err := NewReminderJob(ReminderPayload{RecordID: "r1", Stage: 2}, at)
	require.NoError(t, err)
	assert.Equal(t, DueReminderTask, job.Task.Type())
	assert.True(t, job.ProcessAt.Equal(at))

	var p ReminderPayload
	require.NoError(t, Decode(job.Task, &p))
	assert.Equal(t, ReminderPayload{RecordID: "r1", Stage: 2}, p)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	var p ReceiptPayload
	assert.Error(t, Decode(asynq.NewTask(GenerateReceiptTask, []byte("{")), &p))
}
