package services

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/queue"
	"github.com/civisight/portal/pkg/repository"
)

// KindTaskReminder is the queue message kind of a reminder e-mail.
const KindTaskReminder = "task_reminder"

var reminderBody = template.Must(template.New("reminder").Parse(`Hello,

This is a reminder about your assigned task:

Task: {{.Title}}
{{- if .Description}}
Description: {{.Description}}
{{- end}}
County: {{.County}}
Deadline: {{.Deadline}}
Priority: {{.Priority}}

Please ensure this task is completed by the deadline.

If you have any questions, please contact the task creator.

Best regards,
Civisight Team
`))

// ReminderEmail is the queued e-mail.
type ReminderEmail struct {
	ReminderID string `json:"reminder_id"`
	TaskID     string `json:"task_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// Mailer delivers a reminder and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, email ReminderEmail) (string, error)
}

// LogMailer writes e-mails to the log instead of sending them.
type LogMailer struct {
	logger observability.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email ReminderEmail) (string, error) {
	id := uuid.NewString()
	m.logger.Info("Would send email", map[string]interface{}{
		"message_id": id,
		"to":         email.To,
		"subject":    email.Subject,
		"body":       email.Body,
	})
	return id, nil
}

// ReminderConfig configures the reminder service.
type ReminderConfig struct {
	FromAddress string

	// WaitSeconds is the long-poll wait of Drain.
	WaitSeconds int32

	// BatchSize bounds the messages Drain takes at once.
	BatchSize int32
}

// ReminderService renders reminder e-mails for task assignees and moves them
// through the queue.
type ReminderService struct {
	BaseService
	tasks     repository.TaskRepository
	users     repository.UserRepository
	counties  repository.CountyRepository
	reminders repository.ReminderRepository
	queue     queue.Queue
	cfg       ReminderConfig
	now       func() time.Time
}

// NewReminderService creates the reminder service.
func NewReminderService(config ServiceConfig, cfg ReminderConfig, tasks repository.TaskRepository, users repository.UserRepository,
	counties repository.CountyRepository, reminders repository.ReminderRepository, q queue.Queue) *ReminderService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &ReminderService{
		BaseService: NewBaseService(config),
		tasks:       tasks,
		users:       users,
		counties:    counties,
		reminders:   reminders,
		queue:       q,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SendDue queues reminders for every open task whose reminder interval has
// passed at now, and returns how many e-mails were queued.
func (s *ReminderService) SendDue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.config.Tracer(ctx, "ReminderService.SendDue")
	defer span.End()

	open, err := s.tasks.ListOpen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list open tasks")
	}
	queued := 0
	for _, task := range open {
		if !task.ReminderDue(now) {
			continue
		}
		sent, err := s.remind(ctx, task, now)
		queued += len(sent)
		if err != nil {
			s.config.Logger.Warn("Failed to queue reminders", map[string]interface{}{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
	}
	s.config.Metrics.RecordGauge("reminders_queued_last_scan", float64(queued), nil)
	return queued, nil
}

// SendNow queues reminders for one task regardless of its schedule.
func (s *ReminderService) SendNow(ctx context.Context, taskID string) ([]*models.Reminder, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", taskID)
	}
	if task.Status == models.TaskStatusCompleted {
		return nil, ValidationError{Field: "status", Message: "task is already completed"}
	}
	return s.remind(ctx, task, s.now().UTC())
}

// ListByTask returns the reminder log of a task.
func (s *ReminderService) ListByTask(ctx context.Context, taskID string) ([]*models.Reminder, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", taskID)
	}
	list, err := s.reminders.ListByTask(ctx, taskID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list reminders of task %s", taskID)
	}
	return list, nil
}

func (s *ReminderService) remind(ctx context.Context, task *models.Task, now time.Time) ([]*models.Reminder, error) {
	recipients := s.recipients(ctx, task)
	if len(recipients) == 0 {
		return nil, errors.Errorf("task %s has no reachable assignee", task.ID)
	}
	subject, body, err := s.render(ctx, task)
	if err != nil {
		return nil, err
	}

	var queued []*models.Reminder
	for _, to := range recipients {
		rem := &models.Reminder{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Recipient: to,
			Subject:   subject,
			Status:    models.ReminderQueued,
			CreatedAt: now,
		}
		if err := s.reminders.Create(ctx, rem); err != nil {
			return queued, errors.Wrap(err, "failed to record reminder")
		}
		msg, err := queue.NewMessage(KindTaskReminder, ReminderEmail{
			ReminderID: rem.ID,
			TaskID:     task.ID,
			From:       s.cfg.FromAddress,
			To:         to,
			Subject:    subject,
			Body:       body,
		})
		if err == nil {
			err = s.queue.Enqueue(ctx, msg)
		}
		if err != nil {
			if markErr := s.reminders.MarkFailed(ctx, rem.ID); markErr != nil {
				s.config.Logger.Warn("Failed to mark reminder failed", map[string]interface{}{"reminder_id": rem.ID, "error": markErr.Error()})
			}
			return queued, errors.Wrap(err, "failed to queue reminder")
		}
		queued = append(queued, rem)
	}

	if err := s.tasks.MarkReminderSent(ctx, task.ID, now); err != nil {
		return queued, errors.Wrap(err, "failed to stamp reminder")
	}
	s.config.Metrics.IncrementCounter("reminders_queued_total", float64(len(queued)))
	return queued, nil
}

// recipients resolves assignees to e-mail addresses. Assignees may be user
// ids, plain addresses, or the county's main contact.
func (s *ReminderService) recipients(ctx context.Context, task *models.Task) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		if _, dup := seen[addr]; !dup {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	for _, a := range task.AssignedTo {
		switch {
		case strings.Contains(a, "@"):
			add(a)
		case a == models.CountyMainAssignee:
			profile, err := s.counties.GetProfile(ctx, task.CountyID)
			if err != nil {
				s.config.Logger.Debug("County has no contact e-mail", map[string]interface{}{"county_id": task.CountyID})
				continue
			}
			add(profile.Email)
		default:
			user, err := s.users.GetByID(ctx, a)
			if err != nil {
				s.config.Logger.Debug("Assignee not found", map[string]interface{}{"assignee": a, "task_id": task.ID})
				continue
			}
			add(user.Email)
		}
	}
	return out
}

func (s *ReminderService) render(ctx context.Context, task *models.Task) (string, string, error) {
	county := task.CountyID
	if c, err := s.counties.Get(ctx, task.CountyID); err == nil {
		county = c.Name
	}
	deadline := "none"
	if !task.Deadline.IsZero() {
		deadline = task.Deadline.Format("January 2, 2006")
	}

	var buf bytes.Buffer
	err := reminderBody.Execute(&buf, map[string]string{
		"Title":       task.Title,
		"Description": task.Description,
		"County":      county,
		"Deadline":    deadline,
		"Priority":    string(task.Priority),
	})
	if err != nil {
		return "", "", errors.Wrap(err, "failed to render reminder")
	}
	return "Task Reminder: " + task.Title, buf.String(), nil
}

// Drain receives one batch from the queue and delivers it through mailer.
// Delivered messages are deleted; failed ones become visible again after the
// queue's visibility timeout. It returns the number delivered.
func (s *ReminderService) Drain(ctx context.Context, mailer Mailer) (int, error) {
	msgs, receipts, err := s.queue.Receive(ctx, s.cfg.BatchSize, s.cfg.WaitSeconds)
	if err != nil {
		return 0, errors.Wrap(err, "failed to receive reminders")
	}
	delivered := 0
	for i, msg := range msgs {
		if msg.Kind != KindTaskReminder {
			s.config.Logger.Warn("Dropping message of unknown kind", map[string]interface{}{"kind": msg.Kind, "id": msg.ID})
			_ = s.queue.Delete(ctx, receipts[i])
			continue
		}
		if err := s.Deliver(ctx, msg, mailer); err != nil {
			s.config.Logger.Warn("Reminder delivery failed", map[string]interface{}{"id": msg.ID, "error": err.Error()})
			continue
		}
		if err := s.queue.Delete(ctx, receipts[i]); err != nil {
			s.config.Logger.Warn("Failed to delete delivered reminder", map[string]interface{}{"id": msg.ID, "error": err.Error()})
		}
		delivered++
	}
	return delivered, nil
}

// Deliver sends one queued reminder and records the outcome.
func (s *ReminderService) Deliver(ctx context.Context, msg queue.Message, mailer Mailer) error {
	var email ReminderEmail
	if err := msg.Decode(&email); err != nil {
		return errors.Wrap(err, "failed to decode reminder")
	}
	messageID, err := mailer.Send(ctx, email)
	if err != nil {
		s.config.Metrics.IncrementCounter("reminders_failed_total", 1)
		if markErr := s.reminders.MarkFailed(ctx, email.ReminderID); markErr != nil {
			s.config.Logger.Warn("Failed to mark reminder failed", map[string]interface{}{"reminder_id": email.ReminderID, "error": markErr.Error()})
		}
		return errors.Wrapf(err, "failed to send reminder %s", email.ReminderID)
	}
	if err := s.reminders.MarkSent(ctx, email.ReminderID, messageID, s.now().UTC()); err != nil {
		return errors.Wrapf(err, "failed to mark reminder %s sent", email.ReminderID)
	}
	s.config.Metrics.IncrementCounter("reminders_sent_total", 1)
	return nil
}
