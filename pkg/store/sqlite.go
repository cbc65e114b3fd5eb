package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the wallet's local SQLite
// store and returns ready stores. Use ":memory:" only in tests;
// in-memory state defeats the restart-durability contract.
func OpenSQLite(path string) (*SQLStores, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	// The store is shared by logical requests from several pages at
	// nearly the same time; a single connection serializes writers
	// without holding locks across suspension points.
	db.SetMaxOpenConns(1)

	stores, err := NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return stores, db, nil
}
