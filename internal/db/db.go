// internal/db/db.go
package db

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// Connect opens and pings a Postgres connection.
func Connect(url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
