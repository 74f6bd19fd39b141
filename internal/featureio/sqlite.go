package featureio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
)

const DefaultTable = "building_dimensions"

// OpenSQLite opens a SQLite database file on a single connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	return db, nil
}

func createTable(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("  batch_id TEXT NOT NULL,\n  idx INTEGER NOT NULL,\n  feature_id TEXT,\n  kind TEXT NOT NULL,\n  crs TEXT")
	for _, a := range model.AllAttrs() {
		fmt.Fprintf(&b, ",\n  %s REAL", a)
	}
	b.WriteString(",\n  PRIMARY KEY (batch_id, idx)\n)")
	return b.String()
}

func insertRow(table string) string {
	cols := []string{"batch_id", "idx", "feature_id", "kind", "crs"}
	for _, a := range model.AllAttrs() {
		cols = append(cols, a.String())
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}

// ExportSQLite writes one row per feature into table, creating it when
// missing. Absent attributes are stored as NULL. Rows are keyed by
// (batchID, feature index) and written in a single transaction.
func ExportSQLite(ctx context.Context, db *sql.DB, table, batchID string, fs model.FeatureSet) error {
	if table == "" {
		table = DefaultTable
	}
	if !validIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if _, err := db.ExecContext(ctx, createTable(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertRow(table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	attrs := model.AllAttrs()
	for _, f := range fs.Features {
		args := make([]any, 0, 5+len(attrs))
		args = append(args, batchID, f.Index, sql.NullString{String: f.ID, Valid: f.ID != ""}, string(f.Type), fs.CRS)
		for _, a := range attrs {
			v, ok := f.Attrs.Get(a)
			args = append(args, sql.NullFloat64{Float64: v, Valid: ok})
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert feature %d: %w", f.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
