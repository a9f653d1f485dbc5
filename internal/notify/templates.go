package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Event names a message template.
type Event string

const (
	EventWelcome         Event = "Welcome"
	EventAccountApproved Event = "AccountApproved"
	EventAccountRejected Event = "AccountRejected"
	EventRoleChanged     Event = "RoleChanged"
	EventBookBorrowed    Event = "BookBorrowed"
	EventReceiptReady    Event = "ReceiptReady"
	EventBookDueReminder Event = "BookDueReminder"
	EventBookReturned    Event = "BookReturned"
)

// Data is the union of fields any template may use.
type Data struct {
	StudentName string
	BookTitle   string
	BorrowDate  time.Time
	DueDate     time.Time
	NewRole     string
	ReceiptURL  string
	IsLate      bool
	DaysLate    int
	AppURL      string
}

// Message is a rendered e-mail.
type Message struct {
	Subject string
	HTML    string
}

type spec struct {
	subject func(Data) string
	body    string
}

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#1A1A2E;font-family:Arial,sans-serif;">
<div style="max-width:600px;margin:0 auto;background-color:#202036;border-radius:12px;padding:40px;color:white;">
<div style="font-size:24px;font-weight:bold;margin-bottom:30px;">BookWise</div>
<h1 style="font-size:28px;margin:0 0 20px 0;">{{.Heading}}</h1>
<p>Hi {{.Data.StudentName}},</p>
{{template "body" .Data}}
{{if .Data.AppURL}}<div style="text-align:center;margin:30px 0;"><a href="{{.Data.AppURL}}" style="display:inline-block;background-color:#F0D9B5;color:#1A1A2E;padding:14px 32px;text-decoration:none;border-radius:8px;font-weight:bold;">Open BookWise</a></div>{{end}}
<p style="margin:40px 0 10px 0;">Happy reading,</p>
<p style="margin:0;">The BookWise Team</p>
</div>
</body>
</html>`

var specs = map[Event]spec{
	EventWelcome: {
		subject: func(Data) string { return "Welcome to BookWise!" },
		body: `<p>Welcome to BookWise! Your account request has been received and is waiting for review.</p>
<p>We will let you know as soon as a librarian approves it.</p>`,
	},
	EventAccountApproved: {
		subject: func(Data) string { return "Your BookWise Account Has Been Approved!" },
		body:    `<p>Good news: your account has been approved. You can now browse the library and borrow books.</p>`,
	},
	EventAccountRejected: {
		subject: func(Data) string { return "BookWise Account Request Update" },
		body: `<p>Unfortunately we could not approve your account request at this time.</p>
<p>Please contact the library if you believe this is a mistake.</p>`,
	},
	EventRoleChanged: {
		subject: func(Data) string { return "Your BookWise Role Has Been Updated!" },
		body:    `<p>Your role has been updated to <strong>{{.NewRole}}</strong>.</p>`,
	},
	EventBookBorrowed: {
		subject: func(d Data) string { return fmt.Sprintf("You've Borrowed %s!", d.BookTitle) },
		body: `<p>You have successfully borrowed <strong>{{.BookTitle}}</strong>.</p>
<p>Borrowed on: {{date .BorrowDate}}<br>Due date: {{date .DueDate}}</p>
<p>Please return the book on or before the due date.</p>`,
	},
	EventReceiptReady: {
		subject: func(d Data) string { return fmt.Sprintf("Your Receipt for %s is Ready!", d.BookTitle) },
		body: `<p>Your receipt for <strong>{{.BookTitle}}</strong> is ready.</p>
<p>Borrowed on: {{date .BorrowDate}}<br>Due date: {{date .DueDate}}</p>
<p><a href="{{.ReceiptURL}}">Download your receipt</a></p>`,
	},
	EventBookDueReminder: {
		subject: func(d Data) string { return fmt.Sprintf("Reminder: %s is Due Soon!", d.BookTitle) },
		body: `<p><strong>{{.BookTitle}}</strong> is due on {{date .DueDate}}.</p>
<p>Please return it on time to avoid late returns on your record.</p>`,
	},
	EventBookReturned: {
		subject: func(d Data) string { return fmt.Sprintf("Thank You for Returning %s!", d.BookTitle) },
		body: `<p>We've received your return of <strong>{{.BookTitle}}</strong>.</p>
{{if .IsLate}}<p>The book was returned {{.DaysLate}} {{if eq .DaysLate 1}}day{{else}}days{{end}} after its due date of {{date .DueDate}}. Please try to return books on time.</p>
{{else}}<p>Thank you for returning it on time.</p>
{{end}}<p>Looking for your next read? Browse the collection and borrow your next favorite book!</p>`,
	},
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("January 2, 2006") },
}

var templates = mustParse()

func mustParse() map[Event]*template.Template {
	out := make(map[Event]*template.Template, len(specs))
	for ev, s := range specs {
		t := template.Must(template.New(string(ev)).Funcs(funcs).Parse(layout))
		template.Must(t.New("body").Parse(s.body))
		out[ev] = t
	}
	return out
}

// Render produces the subject and HTML body for an event.
func Render(ev Event, d Data) (Message, error) {
	s, ok := specs[ev]
	if !ok {
		return Message{}, fmt.Errorf("unknown event %q", ev)
	}
	subject := s.subject(d)
	var buf bytes.Buffer
	err := templates[ev].Execute(&buf, struct {
		Heading string
		Data    Data
	}{Heading: subject, Data: d})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", ev, err)
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}
