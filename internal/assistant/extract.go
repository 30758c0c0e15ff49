package assistant

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jsralgo/fxvault/internal/model"
)

// PayloadKind discriminates the structured payloads an assistant reply may
// embed.
type PayloadKind string

const (
	PayloadAccount      PayloadKind = "account"
	PayloadCustomField  PayloadKind = "custom_field"
	PayloadSchemaChange PayloadKind = "schema_change"
)

// Payload is the tagged union produced by scanning a reply. Exactly one of
// the typed fields is set, matching Kind.
type Payload struct {
	Kind         PayloadKind
	Account      *AccountPayload
	Accounts     []AccountPayload
	CustomField  *model.CustomFieldInput
	SchemaChange *model.ProposalInput
}

// AccountPayload is the account-extraction shape the model emits. Balance
// arrives as either a number or a string depending on the model's mood.
type AccountPayload struct {
	AccountLogin       string          `json:"account_login"`
	InvestorPassword   string          `json:"investor_password"`
	MasterPassword     string          `json:"master_password"`
	PlatformType       string          `json:"platform_type"`
	AccountType        string          `json:"account_type"`
	PlatformNameServer string          `json:"platform_name_server"`
	BotRunning         string          `json:"bot_running"`
	AccountBalance     json.RawMessage `json:"account_balance"`
}

// Balance normalizes the account_balance field to a decimal string.
func (p AccountPayload) Balance() string {
	raw := strings.TrimSpace(string(p.AccountBalance))
	if raw == "" || raw == "null" {
		return "0.00"
	}
	var s string
	if err := json.Unmarshal(p.AccountBalance, &s); err == nil {
		if s == "" {
			return "0.00"
		}
		return s
	}
	var n float64
	if err := json.Unmarshal(p.AccountBalance, &n); err == nil {
		return fmt.Sprintf("%.2f", n)
	}
	return "0.00"
}

// Input converts the payload to a validated account input.
func (p AccountPayload) Input() model.AccountInput {
	in := model.AccountInput{
		AccountLogin:   p.AccountLogin,
		PlatformType:   model.PlatformType(p.PlatformType),
		AccountType:    model.AccountType(p.AccountType),
		AccountBalance: p.Balance(),
	}
	if p.InvestorPassword != "" {
		in.InvestorPassword = &p.InvestorPassword
	}
	if p.MasterPassword != "" {
		in.MasterPassword = &p.MasterPassword
	}
	if p.PlatformNameServer != "" {
		in.PlatformNameServer = &p.PlatformNameServer
	}
	if p.BotRunning != "" {
		in.BotRunning = &p.BotRunning
	}
	return in
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractPayload scans reply text for one embedded JSON payload: a fenced
// code block first, then the first balanced brace span. A reply with no
// parseable payload returns (nil, false) — that is the expected path for
// plain conversational turns, not an error.
//
// Classification is first-match-wins in a fixed order: account-shaped data,
// then a custom-field action, then a schema-change action. Account data
// takes priority over action discriminators since it is the common case.
func ExtractPayload(reply string) (*Payload, bool) {
	for _, candidate := range payloadCandidates(reply) {
		if p, ok := classify(candidate); ok {
			return p, true
		}
	}
	return nil, false
}

// payloadCandidates returns the JSON spans to try, fenced blocks before
// bare brace spans.
func payloadCandidates(reply string) []string {
	var out []string
	for _, m := range fencedJSONRe.FindAllStringSubmatch(reply, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if span := balancedBraceSpan(reply); span != "" {
		out = append(out, span)
	}
	return out
}

// balancedBraceSpan returns the first {...} span with balanced braces,
// ignoring braces inside JSON string literals.
func balancedBraceSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

const (
	actionCreateCustomField   = "create_custom_field"
	actionProposeSchemaChange = "propose_schema_change"
)

func classify(raw string) (*Payload, bool) {
	var probe struct {
		AccountLogin     string            `json:"account_login"`
		InvestorPassword string            `json:"investor_password"`
		Accounts         []json.RawMessage `json:"accounts"`
		Action           string            `json:"action"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, false
	}

	switch {
	case probe.AccountLogin != "" || probe.InvestorPassword != "" || len(probe.Accounts) > 0:
		return classifyAccount(raw, len(probe.Accounts) > 0)
	case probe.Action == actionCreateCustomField:
		return classifyCustomField(raw)
	case probe.Action == actionProposeSchemaChange:
		return classifySchemaChange(raw)
	}
	return nil, false
}

func classifyAccount(raw string, batch bool) (*Payload, bool) {
	if batch {
		var wrapper struct {
			Accounts []AccountPayload `json:"accounts"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil || len(wrapper.Accounts) == 0 {
			return nil, false
		}
		return &Payload{Kind: PayloadAccount, Accounts: wrapper.Accounts}, true
	}
	var p AccountPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &Payload{Kind: PayloadAccount, Account: &p}, true
}

func classifyCustomField(raw string) (*Payload, bool) {
	var p struct {
		EntityType string  `json:"entity_type"`
		EntityID   int64   `json:"entity_id"`
		FieldName  string  `json:"field_name"`
		FieldType  string  `json:"field_type"`
		FieldValue *string `json:"field_value"`
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &Payload{Kind: PayloadCustomField, CustomField: &model.CustomFieldInput{
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		FieldName:  p.FieldName,
		FieldType:  model.FieldType(p.FieldType),
		FieldValue: p.FieldValue,
	}}, true
}

func classifySchemaChange(raw string) (*Payload, bool) {
	var p struct {
		Kind        string  `json:"kind"`
		TableName   string  `json:"table_name"`
		ColumnName  *string `json:"column_name"`
		SQLQuery    string  `json:"sql_query"`
		Description *string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &Payload{Kind: PayloadSchemaChange, SchemaChange: &model.ProposalInput{
		Kind:        model.ProposalKind(p.Kind),
		TableName:   p.TableName,
		ColumnName:  p.ColumnName,
		SQLQuery:    p.SQLQuery,
		Description: p.Description,
	}}, true
}
