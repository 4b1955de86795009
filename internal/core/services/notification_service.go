package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/core/domain"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxStoredResponse = 2000

// NotificationService turns delivered events into webhook calls. One POST
// per event, no retry; every attempt is logged to webhook_logs.
type NotificationService struct {
	webhooks     config.WebhookConfig
	logs         repositories.WebhookLogRepository
	employees    repositories.EmployeeRepository
	distributors repositories.DistributorRepository
	log          *zap.Logger
	now          Clock
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	webhooks config.WebhookConfig,
	logs repositories.WebhookLogRepository,
	employees repositories.EmployeeRepository,
	distributors repositories.DistributorRepository,
	log *zap.Logger,
) *NotificationService {
	if webhooks.Timeout <= 0 {
		webhooks.Timeout = 10 * time.Second
	}
	return &NotificationService{
		webhooks:     webhooks,
		logs:         logs,
		employees:    employees,
		distributors: distributors,
		log:          log.Named("notifications"),
		now:          time.Now,
	}
}

// urlFor picks the configured endpoint for an event type
func (s *NotificationService) urlFor(t events.EventType) string {
	switch t {
	case events.VoucherIssued:
		return s.webhooks.CodeGenerated
	case events.VoucherExpiring:
		return s.webhooks.ExpiryReminder
	case events.VoucherRedeemed:
		return s.webhooks.VoucherRedeemed
	case events.ReimbursementCreated, events.ReimbursementApproved, events.ReimbursementRejected, events.ReimbursementPaid:
		return s.webhooks.Reimbursement
	}
	return ""
}

// Handle is the events.Handler of the notification consumer
func (s *NotificationService) Handle(ctx context.Context, e events.Event) error {
	url := s.urlFor(e.Type)
	if url == "" {
		s.log.Debug("no webhook configured", zap.String("type", string(e.Type)))
		return nil
	}

	payload := s.buildPayload(ctx, e)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	status, resp, sendErr := s.post(url, body)

	entry := &models.WebhookLog{
		EventID:    e.ID,
		Type:       string(e.Type),
		URL:        url,
		Payload:    datatypes.JSON(body),
		StatusCode: status,
		Success:    sendErr == nil && status >= 200 && status < 300,
		Response:   truncate(resp, maxStoredResponse),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	} else if !entry.Success {
		entry.Error = fmt.Sprintf("unexpected status %d", status)
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.log.Warn("webhook log write failed", zap.String("event_id", e.ID), zap.Error(err))
	}

	if !entry.Success {
		s.log.Warn("webhook delivery failed",
			zap.String("type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Int("status", status),
			zap.String("error", entry.Error),
		)
		return fmt.Errorf("webhook %s: %s", e.Type, entry.Error)
	}

	s.log.Debug("webhook delivered", zap.String("type", string(e.Type)), zap.String("event_id", e.ID))
	return nil
}

func (s *NotificationService) post(url string, body []byte) (int, string, error) {
	a := fiber.Post(url)
	a.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	a.Set("X-Source", "consigaz-valegas")
	a.Body(body)
	a.Timeout(s.webhooks.Timeout)

	if err := a.Parse(); err != nil {
		return 0, "", err
	}
	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return code, string(resp), errs[0]
	}
	return code, string(resp), nil
}

type recipient struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type messageTemplate struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type webhookPayload struct {
	Type      string          `json:"type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Recipient *recipient      `json:"recipient,omitempty"`
	Data      events.Event    `json:"data"`
	Template  messageTemplate `json:"template"`
	Channels  []string        `json:"channels"`
}

func (s *NotificationService) buildPayload(ctx context.Context, e events.Event) webhookPayload {
	p := webhookPayload{
		Type:      string(e.Type),
		EventID:   e.ID,
		Timestamp: s.now(),
		Data:      e,
		Channels:  []string{"email", "whatsapp"},
	}

	var name string
	switch e.Type {
	case events.VoucherIssued, events.VoucherExpiring, events.VoucherRedeemed:
		if e.EmployeeID != 0 {
			if emp, err := s.employees.GetByID(ctx, e.EmployeeID); err == nil {
				p.Recipient = &recipient{Name: emp.Name, Email: emp.Email, Phone: emp.Phone}
				name = emp.Name
			}
		}
	default:
		if e.DistributorID != 0 {
			if d, err := s.distributors.GetByID(ctx, e.DistributorID); err == nil {
				p.Recipient = &recipient{Name: d.Name, Email: d.Email, Phone: d.Phone}
				name = d.Name
			}
		}
	}

	p.Template = templateFor(e, name)
	return p
}

func templateFor(e events.Event, name string) messageTemplate {
	expires := ""
	if e.ExpiresAt != nil {
		expires = e.ExpiresAt.Format("02/01/2006")
	}

	switch e.Type {
	case events.VoucherIssued:
		return messageTemplate{
			Subject: "Your gas voucher for " + e.ReferenceMonth,
			Message: fmt.Sprintf("Hello %s, your voucher code is %s, valid until %s.", name, e.VoucherCode, expires),
		}
	case events.VoucherExpiring:
		return messageTemplate{
			Subject: "Your gas voucher expires soon",
			Message: fmt.Sprintf("Hello %s, voucher %s expires in %d day(s), on %s.", name, e.VoucherCode, e.DaysLeft, expires),
		}
	case events.VoucherRedeemed:
		return messageTemplate{
			Subject: "Gas voucher redeemed",
			Message: fmt.Sprintf("Hello %s, voucher %s was redeemed at %s.", name, e.VoucherCode, e.Attributes["distributor_name"]),
		}
	case events.ReimbursementRejected:
		return messageTemplate{
			Subject: "Reimbursement rejected",
			Message: fmt.Sprintf("Hello %s, reimbursement #%d was rejected: %s.", name, e.ReimbursementID, e.Attributes["reason"]),
		}
	}

	status := strings.TrimPrefix(string(e.Type), "reimbursement.")
	return messageTemplate{
		Subject: "Reimbursement " + status,
		Message: fmt.Sprintf("Hello %s, reimbursement #%d of %s is now %s.", name, e.ReimbursementID, e.Attributes["amount"], status),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// WebhookStats is the delivery summary shown to admins
type WebhookStats struct {
	Days   int                             `json:"days"`
	ByType []repositories.WebhookTypeStats `json:"by_type"`
	Latest []models.WebhookLog             `json:"latest"`
}

// Stats summarizes deliveries of the last days
func (s *NotificationService) Stats(ctx context.Context, days int) (*WebhookStats, error) {
	if days < 1 {
		days = 30
	}
	since := s.now().AddDate(0, 0, -days)
	byType, err := s.logs.StatsSince(ctx, since)
	if err != nil {
		return nil, domain.Persistence("webhook stats", err)
	}
	latest, err := s.logs.Latest(ctx, 20)
	if err != nil {
		return nil, domain.Persistence("latest webhooks", err)
	}
	return &WebhookStats{Days: days, ByType: byType, Latest: latest}, nil
}
