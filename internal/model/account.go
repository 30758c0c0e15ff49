package model

import (
	"fmt"
	"time"
)

// PlatformType is the trading platform generation an account runs on.
type PlatformType string

const (
	PlatformMeta4 PlatformType = "meta4"
	PlatformMeta5 PlatformType = "meta5"
)

// AccountType is the account currency mode.
type AccountType string

const (
	AccountUSD  AccountType = "usd"
	AccountCent AccountType = "cent"
)

// ForexAccount is a trading-platform credential record.
// AccountName and AccountLogin are globally unique; balances are kept as
// decimal strings so no precision is lost round-tripping through JSON.
type ForexAccount struct {
	ID                 int64        `json:"id"`
	AccountName        string       `json:"account_name"`
	OwnerName          *string      `json:"owner_name,omitempty"`
	OwnerID            *int64       `json:"owner_id,omitempty"`
	AccountBalance     string       `json:"account_balance"`
	AccountLogin       string       `json:"account_login"`
	InvestorPassword   *string      `json:"investor_password,omitempty"`
	MasterPassword     *string      `json:"master_password,omitempty"`
	PlatformType       PlatformType `json:"platform_type"`
	AccountType        AccountType  `json:"account_type"`
	PlatformNameServer *string      `json:"platform_name_server,omitempty"`
	BotRunning         *string      `json:"bot_running,omitempty"`
	LinkedUserEmail    *string      `json:"linked_user_email,omitempty"`
	BrokerLogoURL      *string      `json:"broker_logo_url,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// AccountInput is the payload for creating an account. AccountName is
// optional: when empty the service derives one from the broker and login.
type AccountInput struct {
	AccountName        string       `json:"account_name,omitempty"`
	OwnerName          *string      `json:"owner_name,omitempty"`
	AccountLogin       string       `json:"account_login"`
	InvestorPassword   *string      `json:"investor_password,omitempty"`
	MasterPassword     *string      `json:"master_password,omitempty"`
	PlatformType       PlatformType `json:"platform_type"`
	AccountType        AccountType  `json:"account_type"`
	PlatformNameServer *string      `json:"platform_name_server,omitempty"`
	BotRunning         *string      `json:"bot_running,omitempty"`
	AccountBalance     string       `json:"account_balance,omitempty"`
	LinkedUserEmail    *string      `json:"linked_user_email,omitempty"`
}

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	AccountName        *string       `json:"account_name,omitempty"`
	OwnerName          *string       `json:"owner_name,omitempty"`
	AccountBalance     *string       `json:"account_balance,omitempty"`
	AccountLogin       *string       `json:"account_login,omitempty"`
	InvestorPassword   *string       `json:"investor_password,omitempty"`
	MasterPassword     *string       `json:"master_password,omitempty"`
	PlatformType       *PlatformType `json:"platform_type,omitempty"`
	AccountType        *AccountType  `json:"account_type,omitempty"`
	PlatformNameServer *string       `json:"platform_name_server,omitempty"`
	BotRunning         *string       `json:"bot_running,omitempty"`
	LinkedUserEmail    *string       `json:"linked_user_email,omitempty"`
}

// ValidateAccountInput checks the required account fields and enum values.
func ValidateAccountInput(in AccountInput) error {
	if in.AccountLogin == "" {
		return fmt.Errorf("account_login is required")
	}
	if in.PlatformType != PlatformMeta4 && in.PlatformType != PlatformMeta5 {
		return fmt.Errorf("platform_type must be %q or %q", PlatformMeta4, PlatformMeta5)
	}
	if in.AccountType != AccountUSD && in.AccountType != AccountCent {
		return fmt.Errorf("account_type must be %q or %q", AccountUSD, AccountCent)
	}
	return nil
}

// ValidateAccountUpdate checks enum values on the fields present in a
// partial update.
func ValidateAccountUpdate(upd AccountUpdate) error {
	if upd.PlatformType != nil && *upd.PlatformType != PlatformMeta4 && *upd.PlatformType != PlatformMeta5 {
		return fmt.Errorf("platform_type must be %q or %q", PlatformMeta4, PlatformMeta5)
	}
	if upd.AccountType != nil && *upd.AccountType != AccountUSD && *upd.AccountType != AccountCent {
		return fmt.Errorf("account_type must be %q or %q", AccountUSD, AccountCent)
	}
	if upd.AccountLogin != nil && *upd.AccountLogin == "" {
		return fmt.Errorf("account_login must not be empty")
	}
	if upd.AccountName != nil && *upd.AccountName == "" {
		return fmt.Errorf("account_name must not be empty")
	}
	return nil
}
