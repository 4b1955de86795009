package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================
// Access
// ============================================================

// AdminUser is an admin panel account (ADMIN or SUPERVISOR)
type AdminUser struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Username    string     `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Name        string     `gorm:"size:120;not null" json:"name"`
	Email       string     `gorm:"uniqueIndex;size:150;not null" json:"email"`
	Password    string     `gorm:"size:255;not null" json:"-"`
	Role        string     `gorm:"size:20;default:'ADMIN'" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

// ============================================================
// Registry
// ============================================================

// Employee is a benefit holder. Never hard-deleted.
type Employee struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"size:150;not null" json:"name"`
	Document      string     `gorm:"size:14;uniqueIndex;not null" json:"document"`
	Email         string     `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Password      string     `gorm:"size:255" json:"-"`
	Phone         string     `gorm:"size:20" json:"phone"`
	ZipCode       string     `gorm:"size:9" json:"zip_code,omitempty"`
	Street        string     `gorm:"size:150" json:"street,omitempty"`
	Number        string     `gorm:"size:20" json:"number,omitempty"`
	Complement    string     `gorm:"size:80" json:"complement,omitempty"`
	District      string     `gorm:"size:80" json:"district,omitempty"`
	City          string     `gorm:"size:80;not null" json:"city"`
	State         string     `gorm:"size:2;not null" json:"state"`
	Registration  string     `gorm:"size:30" json:"registration,omitempty"`
	Department    string     `gorm:"size:80" json:"department,omitempty"`
	AdmissionDate *time.Time `gorm:"type:date" json:"admission_date,omitempty"`
	IsActive      bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// TemporaryPassword is only filled on the create or import response
	TemporaryPassword string `gorm:"-" json:"temporary_password,omitempty"`
}

func (Employee) TableName() string {
	return "employees"
}

// Distributor is a distribution point. Kind decides reimbursement.
type Distributor struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:150;not null" json:"name"`
	Document     string    `gorm:"size:18;uniqueIndex;not null" json:"document"`
	Email        string    `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Password     string    `gorm:"size:255;not null" json:"-"`
	Phone        string    `gorm:"size:20" json:"phone"`
	ContactName  string    `gorm:"size:120" json:"contact_name"`
	ZipCode      string    `gorm:"size:9" json:"zip_code"`
	Street       string    `gorm:"size:150" json:"street"`
	Number       string    `gorm:"size:20" json:"number"`
	Complement   string    `gorm:"size:80" json:"complement,omitempty"`
	District     string    `gorm:"size:80" json:"district"`
	City         string    `gorm:"size:80" json:"city"`
	State        string    `gorm:"size:2" json:"state"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	OpeningHours string    `gorm:"size:120" json:"opening_hours,omitempty"`
	Kind         string    `gorm:"size:10;default:'external'" json:"kind"`
	Bank         string    `gorm:"size:60" json:"bank,omitempty"`
	Agency       string    `gorm:"size:20" json:"agency,omitempty"`
	Account      string    `gorm:"size:30" json:"account,omitempty"`
	AccountType  string    `gorm:"size:10" json:"account_type,omitempty"`
	PixKey       string    `gorm:"size:120" json:"pix_key,omitempty"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Distributor) TableName() string {
	return "distributors"
}

// ============================================================
// Vouchers
// ============================================================

// Voucher is a single-use benefit code for one employee and one month.
// Status, DistributorID and RedeemedAt change only through conditional
// updates qualified by status = 'active'.
type Voucher struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	Code           string       `gorm:"size:9;uniqueIndex;not null" json:"code"`
	EmployeeID     uint         `gorm:"not null;index:idx_vouchers_employee_month" json:"employee_id"`
	ReferenceMonth string       `gorm:"size:7;not null;index:idx_vouchers_employee_month" json:"reference_month"`
	Status         string       `gorm:"size:10;not null;default:'active';index" json:"status"`
	DistributorID  *uint        `gorm:"index" json:"distributor_id,omitempty"`
	RedeemedAt     *time.Time   `json:"redeemed_at,omitempty"`
	IssuedAt       time.Time    `gorm:"not null" json:"issued_at"`
	ExpiresAt      time.Time    `gorm:"not null;index" json:"expires_at"`
	Employee       *Employee    `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Distributor    *Distributor `gorm:"foreignKey:DistributorID" json:"distributor,omitempty"`
}

func (Voucher) TableName() string {
	return "vouchers"
}

// RedemptionHistory is the write-once snapshot taken when a voucher is
// redeemed. Names are copied so later registry edits do not rewrite history.
type RedemptionHistory struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	VoucherID        uint      `gorm:"uniqueIndex;not null" json:"voucher_id"`
	EmployeeID       uint      `gorm:"index;not null" json:"employee_id"`
	DistributorID    uint      `gorm:"index;not null" json:"distributor_id"`
	Code             string    `gorm:"size:9;not null" json:"code"`
	ReferenceMonth   string    `gorm:"size:7;not null;index" json:"reference_month"`
	RedeemedAt       time.Time `gorm:"not null" json:"redeemed_at"`
	EmployeeName     string    `gorm:"size:150" json:"employee_name"`
	EmployeeDocument string    `gorm:"size:14" json:"employee_document"`
	DistributorName  string    `gorm:"size:150" json:"distributor_name"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RedemptionHistory) TableName() string {
	return "redemption_history"
}

// ============================================================
// Reimbursements
// ============================================================

// Reimbursement is the claim an external distributor holds for one redeemed
// voucher. VoucherID is unique.
type Reimbursement struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	VoucherID        uint            `gorm:"uniqueIndex;not null" json:"voucher_id"`
	DistributorID    uint            `gorm:"index;not null" json:"distributor_id"`
	EmployeeID       uint            `gorm:"index;not null" json:"employee_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	ReferenceMonth   string          `gorm:"size:7;not null;index" json:"reference_month"`
	Status           string          `gorm:"size:12;not null;default:'to_validate';index" json:"status"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`
	RejectionReason  string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	InvoicePath      string          `gorm:"size:255" json:"-"`
	ReceiptPath      string          `gorm:"size:255" json:"-"`
	PaymentProofPath string          `gorm:"size:255" json:"-"`
	Bank             string          `gorm:"size:60" json:"bank,omitempty"`
	Agency           string          `gorm:"size:20" json:"agency,omitempty"`
	Account          string          `gorm:"size:30" json:"account,omitempty"`
	AccountType      string          `gorm:"size:10" json:"account_type,omitempty"`
	PixKey           string          `gorm:"size:120" json:"pix_key,omitempty"`
	ValidatedAt      *time.Time      `gorm:"index" json:"validated_at,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	RejectedAt       *time.Time      `json:"rejected_at,omitempty"`
	ApprovedBy       *uint           `json:"approved_by,omitempty"`
	PaidBy           *uint           `json:"paid_by,omitempty"`
	RejectedBy       *uint           `json:"rejected_by,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Voucher     *Voucher               `gorm:"foreignKey:VoucherID" json:"voucher,omitempty"`
	Distributor *Distributor           `gorm:"foreignKey:DistributorID" json:"distributor,omitempty"`
	Employee    *Employee              `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	History     []ReimbursementHistory `gorm:"foreignKey:ReimbursementID" json:"history,omitempty"`
}

func (Reimbursement) TableName() string {
	return "reimbursements"
}

// ProofPath returns the stored file for a slot name
func (r *Reimbursement) ProofPath(slot string) string {
	switch slot {
	case "invoice":
		return r.InvoicePath
	case "receipt":
		return r.ReceiptPath
	case "payment_proof":
		return r.PaymentProofPath
	}
	return ""
}

// ProofColumn maps a slot name onto its column
func ProofColumn(slot string) string {
	switch slot {
	case "invoice":
		return "invoice_path"
	case "receipt":
		return "receipt_path"
	case "payment_proof":
		return "payment_proof_path"
	}
	return ""
}

// Reimbursement history actions
const (
	HistoryCreated       = "created"
	HistoryEdited        = "edited"
	HistoryApproved      = "approved"
	HistoryRejected      = "rejected"
	HistoryPaid          = "paid"
	HistoryProofAttached = "proof_attached"
)

// ReimbursementHistory is one append-only audit row. ActorID is nil for
// rows written by the system (auto-created on redemption).
type ReimbursementHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ReimbursementID uint      `gorm:"index;not null" json:"reimbursement_id"`
	ActorID         *uint     `json:"actor_id,omitempty"`
	ActorName       string    `gorm:"size:120;not null" json:"actor_name"`
	PreviousStatus  string    `gorm:"size:12" json:"previous_status,omitempty"`
	NewStatus       string    `gorm:"size:12;not null" json:"new_status"`
	Action          string    `gorm:"size:20;not null" json:"action"`
	Note            string    `gorm:"type:text" json:"note,omitempty"`
	IP              string    `gorm:"size:45" json:"ip,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReimbursementHistory) TableName() string {
	return "reimbursement_history"
}

// ============================================================
// System
// ============================================================

// Setting is one business configuration key
type Setting struct {
	Key         string    `gorm:"column:setting_key;primaryKey;size:64" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"size:255" json:"description"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// AuditLog records who did what. ActorType is admin, distributor or cron.
type AuditLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ActorType string         `gorm:"size:20;not null" json:"actor_type"`
	ActorID   *uint          `json:"actor_id,omitempty"`
	ActorName string         `gorm:"size:120;not null" json:"actor_name"`
	Action    string         `gorm:"size:50;not null;index" json:"action"`
	Entity    string         `gorm:"size:30;index" json:"entity,omitempty"`
	EntityID  *uint          `json:"entity_id,omitempty"`
	Details   datatypes.JSON `json:"details,omitempty"`
	IP        string         `gorm:"size:45" json:"ip,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// WebhookLog records one outbound notification attempt
type WebhookLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EventID    string         `gorm:"size:36;index" json:"event_id"`
	Type       string         `gorm:"size:40;not null;index" json:"type"`
	URL        string         `gorm:"size:255" json:"url"`
	Payload    datatypes.JSON `json:"payload"`
	StatusCode int            `json:"status_code"`
	Success    bool           `gorm:"index" json:"success"`
	Response   string         `gorm:"type:text" json:"response,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}

// AutoMigrate creates or updates every table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AdminUser{},
		&Employee{},
		&Distributor{},
		&Voucher{},
		&RedemptionHistory{},
		&Reimbursement{},
		&ReimbursementHistory{},
		&Setting{},
		&AuditLog{},
		&WebhookLog{},
	)
}
