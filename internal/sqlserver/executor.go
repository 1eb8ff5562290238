package sqlserver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"cdmutil/internal/model"
)

// ExecutionError reports the first statement the endpoint rejected.
// Statements before Index stay applied.
type ExecutionError struct {
	Index     int
	Statement model.SQLStatement
	Cause     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("statement %d (%s %s) failed: %v", e.Index, e.Statement.Kind, e.Statement.Object, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

type Executor struct {
	DB *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{DB: db}
}

// Execute runs statements strictly in order and stops at the first failure.
// There is no surrounding transaction.
func (e *Executor) Execute(ctx context.Context, stmts []model.SQLStatement, tenantID string) error {
	for i, s := range stmts {
		if err := ctx.Err(); err != nil {
			return &ExecutionError{Index: i, Statement: s, Cause: err}
		}
		if _, err := e.DB.ExecContext(ctx, s.Text); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("tenant", tenantID).Int("index", i).Str("object", s.Object).Msg("statement failed")
			return &ExecutionError{Index: i, Statement: s, Cause: err}
		}
		log.Ctx(ctx).Debug().Str("tenant", tenantID).Int("index", i).Str("kind", s.Kind.String()).Str("object", s.Object).Msg("statement applied")
	}

	log.Ctx(ctx).Info().Str("tenant", tenantID).Int("statements", len(stmts)).Msg("DDL applied")
	return nil
}
