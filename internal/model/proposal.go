package model

import (
	"fmt"
	"time"
)

// ProposalKind is the category of schema change a proposal describes.
type ProposalKind string

const (
	ProposalAddColumn    ProposalKind = "add_column"
	ProposalAddTable     ProposalKind = "add_table"
	ProposalModifyColumn ProposalKind = "modify_column"
	ProposalDropColumn   ProposalKind = "drop_column"
)

// ProposalStatus is the lifecycle state of a schema proposal.
// Transitions move forward only: pending → approved → executed, with
// approved → failed as the alternate edge. Never back to pending, never
// failed → executed.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalExecuted ProposalStatus = "executed"
	ProposalFailed   ProposalStatus = "failed"
)

// ValidProposalStatus reports whether s is a known lifecycle state.
func ValidProposalStatus(s ProposalStatus) bool {
	switch s {
	case ProposalPending, ProposalApproved, ProposalExecuted, ProposalFailed:
		return true
	}
	return false
}

// SchemaProposal is a queued, admin-reviewable raw SQL statement.
// The statement is never validated beyond what the store rejects: only
// admins can reach this workflow.
type SchemaProposal struct {
	ID           int64          `json:"id"`
	Kind         ProposalKind   `json:"kind"`
	TableName    string         `json:"table_name"`
	ColumnName   *string        `json:"column_name,omitempty"`
	SQLQuery     string         `json:"sql_query"`
	Description  *string        `json:"description,omitempty"`
	Status       ProposalStatus `json:"status"`
	CreatedBy    int64          `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// ProposalInput is the payload for queueing a schema proposal.
type ProposalInput struct {
	Kind        ProposalKind `json:"kind"`
	TableName   string       `json:"table_name"`
	ColumnName  *string      `json:"column_name,omitempty"`
	SQLQuery    string       `json:"sql_query"`
	Description *string      `json:"description,omitempty"`
}

// ValidateProposalInput checks required proposal fields and the kind enum.
func ValidateProposalInput(in ProposalInput) error {
	switch in.Kind {
	case ProposalAddColumn, ProposalAddTable, ProposalModifyColumn, ProposalDropColumn:
	default:
		return fmt.Errorf("kind must be one of add_column, add_table, modify_column, drop_column")
	}
	if in.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	if in.SQLQuery == "" {
		return fmt.Errorf("sql_query is required")
	}
	return nil
}
