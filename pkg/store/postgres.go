package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenPostgres connects to a hosted Postgres deployment of the wallet
// store.
func OpenPostgres(databaseURL string) (*SQLStores, *sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	stores, err := NewPostgres(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return stores, db, nil
}
