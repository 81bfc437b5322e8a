package services

import (
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
)

// auditService appends rows to audit_logs outside of any ledger transaction.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records an audit event. Failures are logged and swallowed: the ledger
// operation being audited has already committed.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]any) {
	log := logger.Named("audit").With("user_id", userID, "action", action, "resource_id", resourceID)

	if userID == "" || action == "" {
		log.Warnw("Skipping audit entry without actor or action", "resource_type", resourceType)
		return
	}

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       strings.ToUpper(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      encodeChanges(changes),
	}

	if err := s.db.Session(&gorm.Session{NewDB: true}).Create(entry).Error; err != nil {
		log.Errorw("Failed to write audit entry", "error", err, "resource_type", resourceType)
		return
	}
	log.Debugw("Audit entry written", "audit_id", entry.ID)
}

// encodeChanges renders the change set as a JSON object. Decimal amounts
// marshal as strings.
func encodeChanges(changes map[string]any) string {
	if len(changes) == 0 {
		return ""
	}
	data, err := json.Marshal(changes)
	if err != nil {
		logger.Named("audit").Errorw("Failed to encode audit changes", "error", err)
		return "{}"
	}
	return string(data)
}
