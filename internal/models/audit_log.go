package models

// Audited actions. Ledger mutations are recorded against the transaction
// they produced; account and portfolio changes against their own rows.
const (
	AuditRegister        = "REGISTER"
	AuditLogin           = "LOGIN"
	AuditCreatePortfolio = "CREATE_PORTFOLIO"
	AuditUpdatePortfolio = "UPDATE_PORTFOLIO"
	AuditClosePortfolio  = "CLOSE_PORTFOLIO"
	AuditRecalculate     = "RECALCULATE_PORTFOLIO"
	AuditBuy             = "BUY"
	AuditSell            = "SELL"
	AuditTransfer        = "TRANSFER"
	AuditDividend        = "DIVIDEND"
	AuditReverse         = "REVERSE"
)

// Resource types referenced by AuditLog.ResourceType.
const (
	AuditResourceUser        = "user"
	AuditResourcePortfolio   = "portfolio"
	AuditResourceTransaction = "investment_transaction"
)

// AuditLog is an append-only record of who changed what. Changes holds a
// JSON object with the amounts or fields involved.
type AuditLog struct {
	Base
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	Action       string `gorm:"not null;index:idx_audit_logs_action" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `gorm:"index" json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	Changes      string `json:"changes,omitempty"`
}
