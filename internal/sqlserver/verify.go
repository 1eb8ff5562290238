package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cdmutil/internal/model"
)

// Verify checks that every table in metadata exists on the endpoint with the
// expected columns. All problems are reported together.
func Verify(ctx context.Context, db *sql.DB, metadata []model.SQLMetadata, defaultSchema string) error {
	var problems []string

	for _, md := range metadata {
		schema := md.Schema
		if schema == "" {
			schema = defaultSchema
		}

		exists, err := ObjectExists(ctx, db, schema, md.TableName)
		if err != nil {
			return fmt.Errorf("checking %s.%s: %w", schema, md.TableName, err)
		}
		if !exists {
			problems = append(problems, fmt.Sprintf("%s.%s: missing", schema, md.TableName))
			continue
		}

		cols, err := LoadColumns(ctx, db, schema, md.TableName)
		if err != nil {
			return fmt.Errorf("loading columns of %s.%s: %w", schema, md.TableName, err)
		}
		have := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			have[strings.ToLower(c.Name)] = struct{}{}
		}
		for _, c := range md.Columns {
			if _, ok := have[strings.ToLower(c.Name)]; !ok {
				problems = append(problems, fmt.Sprintf("%s.%s: column %s missing", schema, md.TableName, c.Name))
			}
		}
	}

	if len(problems) > 0 {
		return errors.New("verification failed:\n - " + strings.Join(problems, "\n - "))
	}
	return nil
}
