// FILE: thermwatch/src/internal/sink/postgres_store.go
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/lib/pq"
	"github.com/lixenwraith/log"
)

// PostgresStore inserts alerts directly into a Postgres table
type PostgresStore struct {
	db     *sql.DB
	table  string
	query  string
	logger *log.Logger
}

// OpenPostgresStore connects with cfg.DSN. The connection is verified lazily
// on first write so an unreachable database degrades instead of failing startup.
func OpenPostgresStore(cfg config.StoreConfig, logger *log.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	return NewPostgresStore(db, cfg.Table, logger), nil
}

// NewPostgresStore wraps an existing connection pool
func NewPostgresStore(db *sql.DB, table string, logger *log.Logger) *PostgresStore {
	logger.Info("msg", "Postgres store configured",
		"component", "postgres_store",
		"table", table)

	return &PostgresStore{
		db:     db,
		table:  table,
		query:  insertQuery(table),
		logger: logger,
	}
}

func insertQuery(table string) string {
	return "INSERT INTO " + table +
		" (sensor_id, temperature, vibration, timestamp, repair_action, annotation_status) VALUES ($1,$2,$3,$4,$5,$6)"
}

func (s *PostgresStore) Write(ctx context.Context, alert core.Alert) (int, error) {
	_, err := s.db.ExecContext(ctx, s.query,
		alert.SensorID,
		alert.Temperature,
		alert.Vibration,
		alert.ObservedAt,
		alert.RepairAction,
		string(alert.AnnotationStatus),
	)
	if err == nil {
		return http.StatusCreated, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := statusForPQ(pqErr)
		s.logger.Debug("msg", "Postgres rejected insert",
			"component", "postgres_store",
			"sqlstate", string(pqErr.Code),
			"class", pqErr.Code.Class().Name(),
			"status_code", code,
			"error", pqErr.Message)
		return code, nil
	}

	return 0, fmt.Errorf("postgres insert failed: %w", err)
}

// statusForPQ maps a server error to the equivalent HTTP status so retry
// decisions match the REST store
func statusForPQ(err *pq.Error) int {
	switch err.Code.Class() {
	case "28":
		return http.StatusUnauthorized
	case "22", "23", "42":
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
