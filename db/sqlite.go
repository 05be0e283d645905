package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/jmoiron/sqlx"

	"startup-positioning-map/config"

	// Turso "remote only" driver (no embedded replicas)
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const defaultSQLiteFile = "startup-positioning-map/history.db"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

func openTurso(cfg *config.Config) (*sqlx.DB, error) {
	dsn := ensureAuthTokenQuery(strings.TrimSpace(cfg.Turso.DSN), strings.TrimSpace(cfg.Turso.Token))

	x, err := sqlx.Open("libsql", dsn)
	if err != nil {
		return nil, err
	}
	x.SetMaxOpenConns(5)
	x.SetMaxIdleConns(5)
	x.SetConnMaxLifetime(30 * time.Minute)
	return x, nil
}

// localSQLitePath is HISTORY_SQLITE_PATH, or history.db under the XDG data home.
func localSQLitePath(cfg *config.Config) (string, error) {
	if p := strings.TrimSpace(cfg.History.SQLitePath); p != "" {
		return p, nil
	}
	return xdg.DataFile(defaultSQLiteFile)
}

func openLocalSQLite(path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	x, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer.
	x.SetMaxOpenConns(1)
	x.SetMaxIdleConns(1)
	x.SetConnMaxLifetime(time.Hour)
	return x, nil
}

func ensureAuthTokenQuery(dsn, token string) string {
	if token == "" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}

	// Don’t add tokens to local sqlite/file DSNs.
	if strings.EqualFold(u.Scheme, "file") || strings.EqualFold(u.Scheme, "sqlite") {
		return dsn
	}

	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn
	}

	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// DSNLogFields describes a DSN for logs without leaking credentials.
func DSNLogFields(dsn string) []any {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return []any{"dsn", "unparseable"}
	}
	return []any{"scheme", u.Scheme, "host", u.Host}
}
