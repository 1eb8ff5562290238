package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cdmutil/internal/model"
	"cdmutil/internal/templates"
)

// CredentialName is the managed-identity credential created during setup.
const CredentialName = "SynapseIdentity"

// Provisioner runs the one-time database setup per tenant and schema.
type Provisioner struct {
	mu   sync.Mutex
	done map[string]struct{}
}

func NewProvisioner() *Provisioner {
	return &Provisioner{done: make(map[string]struct{})}
}

// DefaultProvisioner is shared by every invocation in the process.
var DefaultProvisioner = NewProvisioner()

// SetupStatements returns the idempotent provisioning batch for schema.
func SetupStatements(schema string) []string {
	return []string{
		fmt.Sprintf(`IF NOT EXISTS (SELECT * FROM sys.symmetric_keys WHERE name = '##MS_DatabaseMasterKey##')
    CREATE MASTER KEY ENCRYPTION BY PASSWORD = %s`, templates.Str(uuid.NewString()+"aA1!")),
		fmt.Sprintf(`IF NOT EXISTS (SELECT * FROM sys.database_scoped_credentials WHERE name = %s)
    CREATE DATABASE SCOPED CREDENTIAL %s WITH IDENTITY = 'Managed Identity'`,
			templates.Str(CredentialName), templates.Ident(CredentialName)),
		fmt.Sprintf(`IF NOT EXISTS (SELECT * FROM sys.schemas WHERE name = %s)
    EXEC(%s)`, templates.Str(schema), templates.Str("CREATE SCHEMA "+templates.Ident(schema))),
	}
}

// Setup provisions db for tenantID at most once per tenant and schema.
// A failed setup is not remembered, so the next call retries it.
func (p *Provisioner) Setup(ctx context.Context, db *sql.DB, opts model.WarehouseOptions, tenantID string) error {
	schema := opts.Schema
	if schema == "" {
		schema = model.DefaultSchema
	}
	key := tenantID + "/" + schema

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.done[key]; ok {
		return nil
	}

	for i, q := range SetupStatements(schema) {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("database setup step %d for %s: %w", i, key, err)
		}
	}

	p.done[key] = struct{}{}
	log.Ctx(ctx).Info().Str("tenant", tenantID).Str("schema", schema).Msg("database provisioned")
	return nil
}
