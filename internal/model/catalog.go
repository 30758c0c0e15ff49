package model

import "time"

// TradeServer is a selectable platform server name, maintained by admins
// and offered as a dropdown source when creating accounts.
type TradeServer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Bot is a selectable trading bot name, maintained by admins.
type Bot struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
