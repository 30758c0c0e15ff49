package fxvault

import "time"

// Account is a stored trading-platform credential set.
type Account struct {
	ID                 int64     `json:"id"`
	AccountName        string    `json:"account_name"`
	OwnerName          *string   `json:"owner_name,omitempty"`
	OwnerID            *int64    `json:"owner_id,omitempty"`
	AccountBalance     string    `json:"account_balance"`
	AccountLogin       string    `json:"account_login"`
	InvestorPassword   *string   `json:"investor_password,omitempty"`
	MasterPassword     *string   `json:"master_password,omitempty"`
	PlatformType       string    `json:"platform_type"`
	AccountType        string    `json:"account_type"`
	PlatformNameServer *string   `json:"platform_name_server,omitempty"`
	BotRunning         *string   `json:"bot_running,omitempty"`
	LinkedUserEmail    *string   `json:"linked_user_email,omitempty"`
	BrokerLogoURL      *string   `json:"broker_logo_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Platform types accepted by the server.
const (
	PlatformMeta4 = "meta4"
	PlatformMeta5 = "meta5"
)

// Account denomination types.
const (
	AccountUSD  = "usd"
	AccountCent = "cent"
)

// CreateAccountRequest is the body for creating an account. AccountName is
// derived server-side from the platform server name and login when omitted.
type CreateAccountRequest struct {
	AccountName        string  `json:"account_name,omitempty"`
	OwnerName          *string `json:"owner_name,omitempty"`
	AccountLogin       string  `json:"account_login"`
	InvestorPassword   *string `json:"investor_password,omitempty"`
	MasterPassword     *string `json:"master_password,omitempty"`
	PlatformType       string  `json:"platform_type"`
	AccountType        string  `json:"account_type"`
	PlatformNameServer *string `json:"platform_name_server,omitempty"`
	BotRunning         *string `json:"bot_running,omitempty"`
	AccountBalance     string  `json:"account_balance,omitempty"`
	LinkedUserEmail    *string `json:"linked_user_email,omitempty"`
}

// UpdateAccountRequest is a partial update; nil fields are left unchanged.
type UpdateAccountRequest struct {
	AccountName        *string `json:"account_name,omitempty"`
	OwnerName          *string `json:"owner_name,omitempty"`
	AccountBalance     *string `json:"account_balance,omitempty"`
	AccountLogin       *string `json:"account_login,omitempty"`
	InvestorPassword   *string `json:"investor_password,omitempty"`
	MasterPassword     *string `json:"master_password,omitempty"`
	PlatformType       *string `json:"platform_type,omitempty"`
	AccountType        *string `json:"account_type,omitempty"`
	PlatformNameServer *string `json:"platform_name_server,omitempty"`
	BotRunning         *string `json:"bot_running,omitempty"`
	LinkedUserEmail    *string `json:"linked_user_email,omitempty"`
}

// Permission is the caller's effective access to one account.
type Permission struct {
	CanEdit bool `json:"can_edit"`
	IsOwner bool `json:"is_owner"`
}

// Grant links a user to an account with a view or edit level.
type Grant struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AccountID int64     `json:"account_id"`
	CanEdit   bool      `json:"can_edit"`
	GrantedBy int64     `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateGrantRequest grants or updates a user's access to an account.
type CreateGrantRequest struct {
	AccountID int64 `json:"account_id"`
	UserID    int64 `json:"user_id"`
	CanEdit   bool  `json:"can_edit"`
}

// Notification is a user-facing notice.
type Notification struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Severity          string    `json:"severity"`
	IsRead            bool      `json:"is_read"`
	RelatedEntityType *string   `json:"related_entity_type,omitempty"`
	RelatedEntityID   *int64    `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChatMessage is one turn of a user's assistant conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatResponse is the assistant reply plus any structured extraction outcome.
type ChatResponse struct {
	Message    string            `json:"message"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
}

// ExtractionResult reports what the assistant extracted from a reply and
// whether the server applied it.
type ExtractionResult struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
	AccountID     *int64 `json:"account_id,omitempty"`
	CustomFieldID *int64 `json:"custom_field_id,omitempty"`
	ProposalID    *int64 `json:"proposal_id,omitempty"`
}

// Proposal is a schema change request moving through the
// pending → approved → executed|failed workflow.
type Proposal struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"`
	TableName    string     `json:"table_name"`
	ColumnName   *string    `json:"column_name,omitempty"`
	SQLQuery     string     `json:"sql_query"`
	Description  *string    `json:"description,omitempty"`
	Status       string     `json:"status"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Proposal statuses.
const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalExecuted = "executed"
	ProposalFailed   = "failed"
)

// CreateProposalRequest is the body for creating a schema change proposal.
type CreateProposalRequest struct {
	Kind        string  `json:"kind"`
	TableName   string  `json:"table_name"`
	ColumnName  *string `json:"column_name,omitempty"`
	SQLQuery    string  `json:"sql_query"`
	Description *string `json:"description,omitempty"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Postgres      string `json:"postgres"`
	SSEBroker     string `json:"sse_broker,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
