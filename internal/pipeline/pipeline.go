// Package pipeline runs the manifest consumption and creation flows.
//
// Consumption: resolve configuration, extract metadata from the manifest
// tree, map CDM types, generate DDL and optionally apply it. Creation:
// resolve the writer configuration, build the folder hierarchy and write
// manifests (plus model.json when asked).
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cdmutil/internal/config"
	"cdmutil/internal/generator"
	"cdmutil/internal/lake"
	"cdmutil/internal/manifest"
	"cdmutil/internal/mapper"
	"cdmutil/internal/model"
	"cdmutil/internal/sqlserver"
)

// DefinitionsFile is Artifacts.json, relative to the app directory.
var DefinitionsFile = filepath.Join("Manifest", "Artifacts.json")

// Pipeline holds the process-wide collaborators. Per-invocation settings
// arrive as overrides on every call.
type Pipeline struct {
	Store       manifest.Store
	Environment map[string]string
	AppDir      string
	Provisioner *sqlserver.Provisioner
	Open        func(ctx context.Context, connString string) (*sql.DB, error)
}

func New(store manifest.Store, environment map[string]string, appDir string) *Pipeline {
	return &Pipeline{
		Store:       store,
		Environment: environment,
		AppDir:      appDir,
		Provisioner: sqlserver.DefaultProvisioner,
		Open:        sqlserver.Open,
	}
}

// invocation tags ctx with a fresh invocation id and returns its logger.
func invocation(ctx context.Context, op string) (context.Context, *zerolog.Logger) {
	logger := log.With().Str("invocation", uuid.NewString()).Str("op", op).Logger()
	return logger.WithContext(ctx), &logger
}

// Result is the outcome of the consumption pipeline.
type Result struct {
	Config     model.AppConfiguration
	Metadata   []model.SQLMetadata
	Statements []model.SQLStatement
}

// ManifestToDDL generates the DDL batch without touching the warehouse.
// eventURL, when non-empty, wins over any ManifestURL setting.
func (p *Pipeline) ManifestToDDL(ctx context.Context, overrides map[string]string, eventURL string) (*Result, error) {
	ctx, logger := invocation(ctx, "manifestToDDL")

	in, err := p.prepare(overrides, eventURL)
	if err != nil {
		return nil, err
	}
	return p.generate(ctx, logger, in)
}

// inputs is everything an invocation needs before the manifest is read.
type inputs struct {
	cfg     model.AppConfiguration
	columns *config.ColumnOverrides
	rules   []config.ViewRule
}

// prepare resolves the configuration and loads the override files, so that
// configuration errors surface before any manifest I/O.
func (p *Pipeline) prepare(overrides map[string]string, eventURL string) (inputs, error) {
	cfg, err := config.Resolve(overrides, p.Environment, eventURL, config.DefaultOverrideFiles(p.AppDir))
	if err != nil {
		return inputs{}, err
	}
	columns, err := config.LoadColumnOverrides(cfg.SourceColumnProperties)
	if err != nil {
		return inputs{}, err
	}
	rules, err := config.LoadViewRules(cfg.ReplaceViewSyntax)
	if err != nil {
		return inputs{}, err
	}
	return inputs{cfg: cfg, columns: columns, rules: rules}, nil
}

func (p *Pipeline) generate(ctx context.Context, logger *zerolog.Logger, in inputs) (*Result, error) {
	cfg := in.cfg
	logger.Info().Str("tenant", cfg.TenantID).Str("manifest", cfg.ManifestURL).Msg("reading manifest metadata")

	metadata, err := manifest.NewExtractor(p.Store).Extract(ctx, cfg)
	if err != nil {
		return nil, err
	}
	metadata, err = mapper.Apply(metadata, in.columns, cfg.Options)
	if err != nil {
		return nil, err
	}
	stmts, err := generator.Generate(metadata, cfg.DDLType, cfg.Options, in.rules)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("tenant", cfg.TenantID).Int("tables", len(metadata)).Int("statements", len(stmts)).Msg("DDL generated")
	return &Result{Config: cfg, Metadata: metadata, Statements: stmts}, nil
}

// ManifestToSQL generates the DDL batch, provisions the database and applies
// the batch in order. A failure leaves earlier statements applied.
func (p *Pipeline) ManifestToSQL(ctx context.Context, overrides map[string]string, eventURL string) (*Result, error) {
	ctx, logger := invocation(ctx, "manifestToSQL")

	in, err := p.prepare(overrides, eventURL)
	if err != nil {
		return nil, err
	}
	if in.cfg.ConnectionString == "" {
		return nil, &config.ConfigurationError{Key: config.KeySQLEndpoint, Reason: "missing"}
	}

	res, err := p.generate(ctx, logger, in)
	if err != nil {
		return nil, err
	}

	db, err := p.Open(ctx, res.Config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connecting to SQL endpoint: %w", err)
	}
	defer db.Close()

	logger.Info().Str("tenant", res.Config.TenantID).Str("schema", res.Config.Options.Schema).Msg("preparing database")
	if err := p.Provisioner.Setup(ctx, db, res.Config.Options, res.Config.TenantID); err != nil {
		return nil, err
	}

	if err := sqlserver.NewExecutor(db).Execute(ctx, res.Statements, res.Config.TenantID); err != nil {
		return res, err
	}
	return res, nil
}

// Verify checks that every table of a generated batch exists on the endpoint.
func (p *Pipeline) Verify(ctx context.Context, res *Result) error {
	db, err := p.Open(ctx, res.Config.ConnectionString)
	if err != nil {
		return fmt.Errorf("connecting to SQL endpoint: %w", err)
	}
	defer db.Close()
	return sqlserver.Verify(ctx, db, res.Metadata, res.Config.Options.Schema)
}

func (p *Pipeline) layout(cfg model.WriterConfiguration) lake.Layout {
	return lake.NewLayout(cfg.StorageAccount, cfg.RootFolder, cfg.MSIAuth)
}

// CreateManifest writes list under the configured local folder, one manifest
// per folder level, and links each level to the next.
func (p *Pipeline) CreateManifest(ctx context.Context, overrides map[string]string, list model.EntityList) (model.ManifestStatus, error) {
	ctx, logger := invocation(ctx, "createManifest")

	cfg, err := config.ResolveWriter(overrides, p.Environment)
	if err != nil {
		return model.ManifestStatus{}, err
	}
	if list.ManifestName == "" {
		list.ManifestName = cfg.ManifestName
	}
	status := model.ManifestStatus{ManifestName: list.ManifestName}

	h := manifest.BuildHierarchy(list, cfg.LocalFolder)
	logger.Info().
		Str("tenant", cfg.TenantID).
		Str("folder", cfg.LocalFolder).
		Int("entities", len(list.Entities)).
		Int("manifests", len(h.Nodes())).
		Msg("creating manifest")

	if err := manifest.NewWriter(p.Store, p.layout(cfg)).Write(ctx, h, cfg.CreateModelJSON); err != nil {
		return status, err
	}

	status.IsManifestCreated = true
	return status, nil
}

// ModelJSON reads an existing manifest and writes a model.json next to it.
func (p *Pipeline) ModelJSON(ctx context.Context, overrides map[string]string) (manifest.ModelJSON, error) {
	ctx, logger := invocation(ctx, "manifestToModelJson")

	cfg, err := config.ResolveWriter(overrides, p.Environment)
	if err != nil {
		return manifest.ModelJSON{}, err
	}
	if cfg.ManifestName == "" {
		return manifest.ModelJSON{}, &config.ConfigurationError{Key: config.KeyManifestName, Reason: "missing"}
	}

	layout := p.layout(cfg)
	location := layout.ManifestLocation(cfg.LocalFolder, cfg.ManifestName)
	logger.Info().Str("tenant", cfg.TenantID).Str("manifest", location).Msg("reading manifest for model.json")

	metadata, err := manifest.NewExtractor(p.Store).Extract(ctx, model.AppConfiguration{
		TenantID:    cfg.TenantID,
		ManifestURL: location,
		Options:     model.DefaultWarehouseOptions(),
	})
	if err != nil {
		return manifest.ModelJSON{}, err
	}

	m := manifest.ModelJSONFromMetadata(cfg.ManifestName, metadata)
	if err := manifest.NewWriter(p.Store, layout).WriteModelJSON(ctx, cfg.LocalFolder, m); err != nil {
		return manifest.ModelJSON{}, err
	}
	return m, nil
}

// Definitions returns the Artifacts.json rows for the tables in TableList
// (every row when TableList is empty).
func (p *Pipeline) Definitions(ctx context.Context, overrides map[string]string) ([]model.ManifestDefinition, error) {
	_, logger := invocation(ctx, "getManifestDefinition")

	tableList, err := config.Lookup(overrides, p.Environment, config.KeyTableList)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(p.AppDir, DefinitionsFile)
	defs, err := config.LoadDefinitions(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &manifest.NotFoundError{Location: path, Err: err}
	}
	if err != nil {
		return nil, err
	}

	out := manifest.FilterDefinitions(defs, tableList)
	logger.Info().Str("path", path).Int("definitions", len(out)).Msg("manifest definitions loaded")
	return out, nil
}
