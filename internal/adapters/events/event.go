package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event
type EventType string

const (
	VoucherIssued         EventType = "voucher.issued"
	VoucherRedeemed       EventType = "voucher.redeemed"
	VoucherExpiring       EventType = "voucher.expiring"
	ReimbursementCreated  EventType = "reimbursement.created"
	ReimbursementApproved EventType = "reimbursement.approved"
	ReimbursementRejected EventType = "reimbursement.rejected"
	ReimbursementPaid     EventType = "reimbursement.paid"
)

// Event is what the core emits after a state change. Consumers load
// anything else they need by id.
type Event struct {
	ID              string            `json:"id"`
	Type            EventType         `json:"type"`
	OccurredAt      time.Time         `json:"occurred_at"`
	VoucherID       uint              `json:"voucher_id,omitempty"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	EmployeeID      uint              `json:"employee_id,omitempty"`
	DistributorID   uint              `json:"distributor_id,omitempty"`
	ReimbursementID uint              `json:"reimbursement_id,omitempty"`
	ReferenceMonth  string            `json:"reference_month,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	DaysLeft        int               `json:"days_left,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// New stamps an event with an id and time
func New(t EventType, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: at}
}

// Key is the partition key: events of one voucher stay ordered
func (e Event) Key() string {
	if e.VoucherCode != "" {
		return e.VoucherCode
	}
	return e.ID
}

// Publisher accepts events without blocking the caller and without
// reporting delivery failures back to it.
type Publisher interface {
	Publish(e Event)
}

// Handler processes one delivered event
type Handler func(ctx context.Context, e Event) error

// Bus is a Publisher whose deliveries are consumed in the same process
type Bus interface {
	Publisher
	Start(ctx context.Context, h Handler)
	Close()
}
