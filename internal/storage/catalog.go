package storage

import (
	"context"
	"fmt"

	"github.com/jsralgo/fxvault/internal/model"
)

// CreateTradeServer adds a platform server name to the catalog.
// Duplicate names return ErrConflict.
func (db *DB) CreateTradeServer(ctx context.Context, name string) (model.TradeServer, error) {
	var s model.TradeServer
	err := db.pool.QueryRow(ctx,
		`INSERT INTO trade_servers (name) VALUES ($1)
		 RETURNING id, name, created_at`,
		name,
	).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.TradeServer{}, fmt.Errorf("storage: create trade server %s: %w", name, ErrConflict)
		}
		return model.TradeServer{}, fmt.Errorf("storage: create trade server: %w", err)
	}
	return s, nil
}

// ListTradeServers returns the server catalog ordered by name.
func (db *DB) ListTradeServers(ctx context.Context) ([]model.TradeServer, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, created_at FROM trade_servers ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list trade servers: %w", err)
	}
	defer rows.Close()

	var servers []model.TradeServer
	for rows.Next() {
		var s model.TradeServer
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan trade server: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// DeleteTradeServer removes a server from the catalog.
func (db *DB) DeleteTradeServer(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM trade_servers WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete trade server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: trade server %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateBot adds a bot name to the catalog. Duplicate names return ErrConflict.
func (db *DB) CreateBot(ctx context.Context, name string) (model.Bot, error) {
	var b model.Bot
	err := db.pool.QueryRow(ctx,
		`INSERT INTO bots (name) VALUES ($1)
		 RETURNING id, name, created_at`,
		name,
	).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Bot{}, fmt.Errorf("storage: create bot %s: %w", name, ErrConflict)
		}
		return model.Bot{}, fmt.Errorf("storage: create bot: %w", err)
	}
	return b, nil
}

// ListBots returns the bot catalog ordered by name.
func (db *DB) ListBots(ctx context.Context) ([]model.Bot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, created_at FROM bots ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list bots: %w", err)
	}
	defer rows.Close()

	var bots []model.Bot
	for rows.Next() {
		var b model.Bot
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan bot: %w", err)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// DeleteBot removes a bot from the catalog.
func (db *DB) DeleteBot(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM bots WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: bot %d: %w", id, ErrNotFound)
	}
	return nil
}
