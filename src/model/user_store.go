package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// UpsertUser inserts the user if absent and returns its row. Users are
// auto-created on first use by the fetch loop and the CSV importer.
func UpsertUser(ctx context.Context, db *sql.DB, name string) (models.User, error) {
	if name == "" {
		return models.User{}, fmt.Errorf("user name must not be empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return models.User{}, fmt.Errorf("upserting user %q: %w", name, err)
	}
	var u models.User
	err = db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE name = ?`, name).Scan(&u.ID, &u.Name)
	if err != nil {
		return models.User{}, fmt.Errorf("reading back user %q: %w", name, err)
	}
	return u, nil
}

// GetAllUsers lists every known user.
func GetAllUsers(ctx context.Context, db *sql.DB) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertExchange inserts the exchange if absent and returns its row.
func UpsertExchange(ctx context.Context, db *sql.DB, name string) (models.Exchange, error) {
	if name == "" {
		return models.Exchange{}, fmt.Errorf("exchange name must not be empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO exchanges (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("upserting exchange %q: %w", name, err)
	}
	var e models.Exchange
	err = db.QueryRowContext(ctx, `SELECT id, name FROM exchanges WHERE name = ?`, name).Scan(&e.ID, &e.Name)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("reading back exchange %q: %w", name, err)
	}
	return e, nil
}
