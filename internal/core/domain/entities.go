package domain

import (
	"math"
	"time"
)

// Role is the actor role carried in access tokens
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleDistributor Role = "DISTRIBUTOR"
	RoleEmployee    Role = "EMPLOYEE"
)

// VoucherStatus moves active -> redeemed or active -> expired, never back
type VoucherStatus string

const (
	VoucherActive   VoucherStatus = "active"
	VoucherRedeemed VoucherStatus = "redeemed"
	VoucherExpired  VoucherStatus = "expired"
)

// ReimbursementStatus is the approval pipeline state.
// to_validate -> approved -> paid, or to_validate -> rejected.
type ReimbursementStatus string

const (
	ReimbursementToValidate ReimbursementStatus = "to_validate"
	ReimbursementApproved   ReimbursementStatus = "approved"
	ReimbursementPaid       ReimbursementStatus = "paid"
	ReimbursementRejected   ReimbursementStatus = "rejected"
)

// IsValid reports whether s is a known status
func (s ReimbursementStatus) IsValid() bool {
	switch s {
	case ReimbursementToValidate, ReimbursementApproved, ReimbursementPaid, ReimbursementRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s ReimbursementStatus) Terminal() bool {
	return s == ReimbursementPaid || s == ReimbursementRejected
}

// Editable reports whether amount, bank details and notes may change in s
func (s ReimbursementStatus) Editable() bool {
	return s == ReimbursementToValidate || s == ReimbursementApproved
}

// Deletable reports whether a reimbursement in s may be removed
func (s ReimbursementStatus) Deletable() bool {
	return s == ReimbursementToValidate || s == ReimbursementRejected
}

// DistributorKind decides whether redemptions are reimbursed
type DistributorKind string

const (
	DistributorInternal DistributorKind = "internal"
	DistributorExternal DistributorKind = "external"
)

// Reimbursable is true for external distributors. An unset kind counts as
// external: legacy rows were created before the column existed.
func (k DistributorKind) Reimbursable() bool {
	return k != DistributorInternal
}

// ProofSlot names one of the three documents a reimbursement can hold
type ProofSlot string

const (
	ProofInvoice      ProofSlot = "invoice"
	ProofReceipt      ProofSlot = "receipt"
	ProofPaymentProof ProofSlot = "payment_proof"
)

// ProofSlots lists every slot in display order
var ProofSlots = []ProofSlot{ProofInvoice, ProofReceipt, ProofPaymentProof}

// ReferenceMonthLayout formats a reference month (YYYY-MM)
const ReferenceMonthLayout = "2006-01"

// ReferenceMonth returns the YYYY-MM period containing t
func ReferenceMonth(t time.Time) string {
	return t.Format(ReferenceMonthLayout)
}

// ValidReferenceMonth reports whether s is a YYYY-MM string
func ValidReferenceMonth(s string) bool {
	_, err := time.Parse(ReferenceMonthLayout, s)
	return err == nil && len(s) == 7
}

// StartOfDay truncates t to midnight in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PastExpiry reports whether the calendar day of now is after the calendar day
// of expiresAt. A voucher is still valid on its expiry date.
func PastExpiry(expiresAt, now time.Time) bool {
	return StartOfDay(now).After(StartOfDay(expiresAt.In(now.Location())))
}

// DaysLeft counts calendar days from now until expiresAt in now's location.
// It is 0 on the expiry date and negative afterwards.
func DaysLeft(expiresAt, now time.Time) int {
	today := StartOfDay(now)
	last := StartOfDay(expiresAt.In(now.Location()))
	return int(math.Round(last.Sub(today).Hours() / 24))
}
