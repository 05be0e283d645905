// Package db opens the SQL database that stores run history. The backend is
// Postgres when DB_HOST and DB_NAME are set, Turso when TURSO_DATABASE_URL is
// set, and a local SQLite file otherwise.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrHistoryDisabled = errors.New("run history disabled: set HISTORY_ENABLED=true")

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendTurso    Backend = "turso"
	BackendSQLite   Backend = "sqlite"
)

// Dialect is the goose dialect for the backend.
func (b Backend) Dialect() string {
	if b == BackendPostgres {
		return "postgres"
	}
	return "sqlite3"
}

type HistoryDB struct {
	*sqlx.DB
	Backend Backend
}

func SelectBackend(cfg *config.Config) Backend {
	switch {
	case strings.TrimSpace(cfg.DBHost) != "" && strings.TrimSpace(cfg.DBName) != "":
		return BackendPostgres
	case strings.TrimSpace(cfg.Turso.DSN) != "":
		return BackendTurso
	default:
		return BackendSQLite
	}
}

// Open opens the configured backend without checking connectivity.
func Open(cfg *config.Config) (*HistoryDB, error) {
	backend := SelectBackend(cfg)

	var (
		x   *sqlx.DB
		err error
	)
	switch backend {
	case BackendPostgres:
		x, err = sqlx.Open("pgx", postgresDSN(cfg))
	case BackendTurso:
		x, err = openTurso(cfg)
	default:
		var path string
		path, err = localSQLitePath(cfg)
		if err == nil {
			x, err = openLocalSQLite(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s history db: %w", backend, err)
	}
	return &HistoryDB{DB: x, Backend: backend}, nil
}

type NewHistoryDBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

// NewHistoryDB returns nil when history is disabled.
func NewHistoryDB(p NewHistoryDBParams) (*HistoryDB, error) {
	if !p.Cfg.History.Enabled {
		p.Logger.Infow("history_disabled", "reason", "HISTORY_ENABLED=false")
		return nil, nil
	}

	h, err := Open(p.Cfg)
	if err != nil {
		return nil, err
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := h.PingContext(pingCtx); err != nil {
				_ = h.Close()
				return fmt.Errorf("%s ping failed: %w", h.Backend, err)
			}
			p.Logger.Infow("history_db_connected", "backend", h.Backend)

			if p.Cfg.History.AutoMigrate {
				if err := Migrate(ctx, h, "up", p.Logger); err != nil {
					_ = h.Close()
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := h.Close(); err != nil {
				p.Logger.Warnw("history_db_close_failed", "backend", h.Backend, "err", err)
			}
			return nil
		},
	})

	return h, nil
}

func postgresDSN(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:   cfg.DBName,
	}
	if strings.TrimSpace(cfg.DBUser) != "" {
		if cfg.DBPassword == "" {
			u.User = url.User(cfg.DBUser)
		} else {
			u.User = url.UserPassword(cfg.DBUser, cfg.DBPassword)
		}
	}
	return u.String()
}
