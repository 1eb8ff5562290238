// Package sqlserver talks to the Synapse SQL endpoint through go-mssqldb.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

// Open accepts both URL (sqlserver://...) and ADO (Server=...;Database=...) connection strings.
func Open(ctx context.Context, connString string) (*sql.DB, error) {
	if strings.TrimSpace(connString) == "" {
		return nil, fmt.Errorf("empty SQL connection string")
	}

	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping SQL endpoint: %w", err)
	}

	return db, nil
}

// Column is one INFORMATION_SCHEMA.COLUMNS row.
type Column struct {
	Name             string
	DataType         string
	IsNullable       string
	CharMaxLength    sql.NullInt64
	NumericPrecision sql.NullInt64
	NumericScale     sql.NullInt64
}

func (c Column) Nullable() bool {
	return strings.EqualFold(c.IsNullable, "YES")
}

func LoadColumns(ctx context.Context, db *sql.DB, schema, table string) ([]Column, error) {
	const q = `
SELECT
  COLUMN_NAME,
  DATA_TYPE,
  IS_NULLABLE,
  CHARACTER_MAXIMUM_LENGTH,
  NUMERIC_PRECISION,
  NUMERIC_SCALE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION;
`
	rows, err := db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(
			&c.Name,
			&c.DataType,
			&c.IsNullable,
			&c.CharMaxLength,
			&c.NumericPrecision,
			&c.NumericScale,
		); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns found for %s.%s", schema, table)
	}

	return cols, nil
}

// ObjectExists reports whether schema.name resolves to any object (table, view or external table).
func ObjectExists(ctx context.Context, db *sql.DB, schema, name string) (bool, error) {
	const q = `SELECT CASE WHEN OBJECT_ID(@p1) IS NULL THEN 0 ELSE 1 END;`

	var exists int
	if err := db.QueryRowContext(ctx, q, quoteName(schema)+"."+quoteName(name)).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 1, nil
}

func quoteName(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}
