package services

import (
	"context"
	"encoding/json"

	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/pagination"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AuditEntry is one action to record
type AuditEntry struct {
	Actor    Actor
	Action   string
	Entity   string
	EntityID uint
	Details  map[string]interface{}
}

// AuditService appends audit rows. Recording never fails the caller.
type AuditService struct {
	repo repositories.AuditLogRepository
	log  *zap.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo repositories.AuditLogRepository, log *zap.Logger) *AuditService {
	return &AuditService{repo: repo, log: log.Named("audit")}
}

// Record writes e, logging instead of returning on failure
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	if s == nil {
		return
	}

	row := &models.AuditLog{
		ActorType: e.Actor.Type,
		ActorID:   e.Actor.idPtr(),
		ActorName: e.Actor.Name,
		Action:    e.Action,
		Entity:    e.Entity,
		IP:        e.Actor.IP,
	}
	if row.ActorType == "" {
		row.ActorType = ActorSystem
	}
	if row.ActorName == "" {
		row.ActorName = row.ActorType
	}
	if e.EntityID != 0 {
		id := e.EntityID
		row.EntityID = &id
	}
	if len(e.Details) > 0 {
		if raw, err := json.Marshal(e.Details); err == nil {
			row.Details = datatypes.JSON(raw)
		}
	}

	if err := s.repo.Create(ctx, row); err != nil {
		s.log.Warn("audit write failed", zap.String("action", e.Action), zap.Error(err))
	}
}

// AuditPage is one page of audit rows
type AuditPage struct {
	Logs []models.AuditLog `json:"logs"`
	Meta pagination.Meta   `json:"pagination"`
}

// List returns audit rows newest first
func (s *AuditService) List(ctx context.Context, f repositories.AuditFilter, p pagination.Params) (*AuditPage, error) {
	rows, total, err := s.repo.List(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list audit logs", err)
	}
	return &AuditPage{Logs: rows, Meta: pagination.MetaFor(p, total)}, nil
}
