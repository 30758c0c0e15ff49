package model

import "time"

// AccountGrant links one user to one account with an edit flag.
// Unique per (user, account) pair: re-granting updates the flag in place.
type AccountGrant struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AccountID int64     `json:"account_id"`
	CanEdit   bool      `json:"can_edit"`
	GrantedBy int64     `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission is the resolved access a user has on one account.
// A nil *Permission means no access at all.
type Permission struct {
	CanEdit bool `json:"can_edit"`
	IsOwner bool `json:"is_owner"`
}
