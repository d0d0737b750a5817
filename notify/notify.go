// Package notify sends the notification_email a job document names on
// terminal SUCCESS at last_service and on terminal FAILED/EXCEPTION at any
// stage (spec §7, "User-visible behaviour"), either immediately or batched
// into a periodic digest depending on the job's notification_type.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"oss.mash.dev/mash/chrono"
	"oss.mash.dev/mash/l3"
)

var logger = l3.Get()

// Notification is one terminal job event worth telling a requester about.
type Notification struct {
	To     string
	JobID  string
	Cloud  string
	Stage  string
	Status string // "SUCCESS", "FAILED", "EXCEPTION"
	Msg    string
}

// Dialer is the subset of *gomail.Dialer this package depends on, so tests
// can substitute a recording stub instead of dialing a real SMTP server.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSMTPDialer builds the gomail.v2 dialer a deployment's cmd/ entry point
// wires a Notifier with.
func NewSMTPDialer(host string, port int, username, password string) Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// Notifier sends or batches job-terminal notification emails. A Notifier is
// safe for concurrent use by every stage's listener.Service.
type Notifier struct {
	Dialer Dialer
	From   string

	mu      sync.Mutex
	pending map[string][]Notification
}

// New returns a Notifier sending through dialer with the given From header.
func New(dialer Dialer, from string) *Notifier {
	return &Notifier{Dialer: dialer, From: from, pending: make(map[string][]Notification)}
}

// Dispatch routes note to an immediate send or to the periodic digest
// queue depending on mode ("single"/"periodic" — jobdoc.NotificationSingle/
// NotificationPeriodic). An empty recipient or unset mode is a no-op send
// (nothing to notify, or the job opted out).
func (n *Notifier) Dispatch(note Notification, mode string) error {
	if note.To == "" {
		return nil
	}
	if mode == "periodic" {
		n.queue(note)
		return nil
	}
	return n.Send(note)
}

// Send delivers note immediately.
func (n *Notifier) Send(note Notification) error {
	if err := n.Dialer.DialAndSend(n.build(note)); err != nil {
		return fmt.Errorf("notify: send to %s: %w", note.To, err)
	}
	return nil
}

func (n *Notifier) queue(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[note.To] = append(n.pending[note.To], note)
}

// Register schedules the periodic digest flush on scheduler, the same
// chrono.AddIntervalJob/WithOnError shape obswatcher.Watcher.Register uses
// for its own polling.
func (n *Notifier) Register(scheduler chrono.Scheduler, interval time.Duration) error {
	onError := chrono.WithOnError(func(jobID string, err error) {
		logger.ErrorF("notify: digest flush failed: %v", err)
	})
	return scheduler.AddIntervalJob("notify.digest", "notify.digest", n.flush, interval, onError)
}

func (n *Notifier) flush(_ context.Context) error {
	n.mu.Lock()
	batch := n.pending
	n.pending = make(map[string][]Notification)
	n.mu.Unlock()

	var firstErr error
	for to, notes := range batch {
		if len(notes) == 0 {
			continue
		}
		if err := n.Dialer.DialAndSend(n.buildDigest(to, notes)); err != nil {
			logger.ErrorF("notify: digest send to %s failed: %v", to, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *Notifier) build(note Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.From)
	msg.SetHeader("To", note.To)
	msg.SetHeader("Subject", subject(note))
	msg.SetBody("text/plain", body(note))
	return msg
}

func (n *Notifier) buildDigest(to string, notes []Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("mash: %d job update(s)", len(notes)))
	var sb strings.Builder
	for _, note := range notes {
		sb.WriteString(body(note))
		sb.WriteString("\n")
	}
	msg.SetBody("text/plain", sb.String())
	return msg
}

func subject(note Notification) string {
	if note.Status == "SUCCESS" {
		return fmt.Sprintf("mash: %s succeeded (%s)", note.JobID, note.Cloud)
	}
	return fmt.Sprintf("mash: %s failed at %s", note.JobID, note.Stage)
}

func body(note Notification) string {
	if note.Status == "SUCCESS" {
		return fmt.Sprintf("Job %s completed successfully on %s.", note.JobID, note.Cloud)
	}
	return fmt.Sprintf("Job %s failed at stage %s: %s", note.JobID, note.Stage, note.Msg)
}
