package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdmutil/internal/config"
	"cdmutil/internal/manifest"
	"cdmutil/internal/mapper"
	"cdmutil/internal/model"
	"cdmutil/internal/sqlserver"
)

func entities() model.EntityList {
	return model.EntityList{
		ManifestName: "AR",
		Entities: []model.EntityDescriptor{
			{
				Name: "CustTable",
				Attributes: []model.CDMAttribute{
					{Name: "AccountNum", DataFormat: "String", MaximumLength: 20},
					{Name: "CreatedDateTime", DataFormat: "DateTime", IsNullable: true},
				},
			},
			{
				Name:       "CustGroup",
				Attributes: []model.CDMAttribute{{Name: "CustGroup", DataFormat: "String", MaximumLength: 10}},
			},
		},
	}
}

// fixture writes the sample entity list under base/Tables/AR and returns the top-level manifest path.
func fixture(t *testing.T, p *Pipeline, base string) string {
	t.Helper()
	status, err := p.CreateManifest(context.Background(), map[string]string{
		config.KeyRootFolder:      base,
		config.KeyLocalFolder:     "Tables/AR",
		config.KeyCreateModelJSON: "true",
	}, entities())
	require.NoError(t, err)
	require.True(t, status.IsManifestCreated)
	return filepath.Join(base, "Tables", "Tables.manifest.cdm.json")
}

func newPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	appDir := t.TempDir()
	return New(manifest.FileStore{}, map[string]string{}, appDir), appDir
}

func TestCreateManifest(t *testing.T) {
	p, _ := newPipeline(t)
	base := t.TempDir()

	fixture(t, p, base)

	for _, f := range []string{
		filepath.Join(base, "Tables", "Tables.manifest.cdm.json"),
		filepath.Join(base, "Tables", "AR", "AR.manifest.cdm.json"),
		filepath.Join(base, "Tables", "AR", "CustTable.cdm.json"),
		filepath.Join(base, "Tables", "AR", "CustGroup.cdm.json"),
		filepath.Join(base, "Tables", "AR", "model.json"),
	} {
		assert.FileExists(t, f)
	}
}

func TestCreateManifest_MissingFolders(t *testing.T) {
	p, _ := newPipeline(t)

	status, err := p.CreateManifest(context.Background(), nil, entities())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.False(t, status.IsManifestCreated)
}

func TestManifestToDDL(t *testing.T) {
	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())

	res, err := p.ManifestToDDL(context.Background(), map[string]string{
		config.KeyManifestURL:      root,
		config.KeyTenantID:         "contoso",
		config.KeyDateTimeAsString: "true",
	}, "")
	require.NoError(t, err)

	require.Len(t, res.Metadata, 2)
	assert.Equal(t, "CustTable", res.Metadata[0].TableName)
	assert.Equal(t, "contoso", res.Metadata[0].TenantID)
	assert.Equal(t, "NVARCHAR(30)", res.Metadata[0].Columns[1].SQLType)

	require.Len(t, res.Statements, 4)
	assert.Equal(t, model.KindDropIfExists, res.Statements[0].Kind)
	assert.Equal(t, model.KindCreateView, res.Statements[1].Kind)
	assert.Equal(t, "dbo.CustTable", res.Statements[1].Object)
	assert.Equal(t, "dbo.CustGroup", res.Statements[3].Object)
}

func TestManifestToDDL_EventURLWins(t *testing.T) {
	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())

	res, err := p.ManifestToDDL(context.Background(), map[string]string{
		config.KeyManifestURL: "/nowhere/else.manifest.cdm.json",
	}, root)
	require.NoError(t, err)
	assert.Equal(t, root, res.Config.ManifestURL)
}

func TestManifestToDDL_Errors(t *testing.T) {
	p, appDir := newPipeline(t)
	root := fixture(t, p, t.TempDir())

	_, err := p.ManifestToDDL(context.Background(), map[string]string{config.KeyManifestURL: "https://x/y.json"}, "")
	var cfgErr *config.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "bad suffix: %v", err)

	_, err = p.ManifestToDDL(context.Background(), map[string]string{config.KeyManifestURL: filepath.Join(appDir, "missing.manifest.cdm.json")}, "")
	var nfErr *manifest.NotFoundError
	assert.True(t, errors.As(err, &nfErr), "missing manifest: %v", err)

	_, err = p.ManifestToDDL(context.Background(), map[string]string{
		config.KeyManifestURL: root,
		config.KeyDDLType:     "Snowflake",
	}, "")
	require.True(t, errors.As(err, &cfgErr), "unknown DDL type: %v", err)
	assert.Equal(t, config.KeyDDLType, cfgErr.Key)
}

func TestConfigurationErrorsBeforeManifestRead(t *testing.T) {
	missing := "/nonexistent/Tables.manifest.cdm.json"

	tests := []struct {
		name      string
		overrides map[string]string
		viewRules string
		toSQL     bool
		wantKey   string
	}{
		{
			name:      "unknown ddl type",
			overrides: map[string]string{config.KeyManifestURL: missing, config.KeyDDLType: "Bogus"},
			wantKey:   config.KeyDDLType,
		},
		{
			name:      "missing sql endpoint",
			overrides: map[string]string{config.KeyManifestURL: missing},
			toSQL:     true,
			wantKey:   config.KeySQLEndpoint,
		},
		{
			name:      "malformed view rules",
			overrides: map[string]string{config.KeyManifestURL: missing},
			viewRules: `[{"table": "CustTable", "find": ""}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, appDir := newPipeline(t)
			p.Open = func(context.Context, string) (*sql.DB, error) {
				t.Fatal("must not connect")
				return nil, nil
			}
			if tt.viewRules != "" {
				require.NoError(t, os.WriteFile(filepath.Join(appDir, config.ReplaceViewSyntaxFile), []byte(tt.viewRules), 0o644))
			}

			run := p.ManifestToDDL
			if tt.toSQL {
				run = p.ManifestToSQL
			}
			_, err := run(context.Background(), tt.overrides, "")

			var cfgErr *config.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, cfgErr.Key)
			}
			var nfErr *manifest.NotFoundError
			assert.False(t, errors.As(err, &nfErr))
		})
	}
}

func TestManifestToDDL_UsesOverrideFiles(t *testing.T) {
	p, appDir := newPipeline(t)
	root := fixture(t, p, t.TempDir())

	require.NoError(t, os.WriteFile(filepath.Join(appDir, config.SourceColumnPropertiesFile), []byte(`{
  "columns": [{"table": "CustTable", "column": "AccountNum", "sqlType": "VARCHAR(20)"}],
  "types": []
}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, config.ReplaceViewSyntaxFile), []byte(`[
  {"table": "CustGroup", "find": "CREATE VIEW", "replace": "CREATE OR ALTER VIEW"}
]`), 0o644))

	res, err := p.ManifestToDDL(context.Background(), map[string]string{config.KeyManifestURL: root}, "")
	require.NoError(t, err)

	assert.Equal(t, "VARCHAR(20)", res.Metadata[0].Columns[0].SQLType)
	assert.True(t, res.Metadata[0].Columns[0].Overridden)
	assert.NotContains(t, res.Statements[1].Text, "CREATE OR ALTER VIEW")
	assert.Contains(t, res.Statements[3].Text, "CREATE OR ALTER VIEW [dbo].[CustGroup]")
}

func TestManifestToDDL_UnsupportedType(t *testing.T) {
	p, _ := newPipeline(t)
	list := entities()
	list.Entities[1].Attributes[0].DataFormat = "Geography"

	base := t.TempDir()
	_, err := p.CreateManifest(context.Background(), map[string]string{
		config.KeyRootFolder:  base,
		config.KeyLocalFolder: "Tables",
	}, list)
	require.NoError(t, err)

	_, err = p.ManifestToDDL(context.Background(), map[string]string{
		config.KeyManifestURL: filepath.Join(base, "Tables", "AR.manifest.cdm.json"),
	}, "")
	var typeErr *mapper.UnsupportedTypeError
	require.True(t, errors.As(err, &typeErr), "got %v", err)
	assert.Equal(t, "Geography", typeErr.Type)
	assert.Equal(t, "CustGroup", typeErr.Column)
}

// containsMatcher matches when the executed SQL contains the expected fragment.
var containsMatcher = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if !strings.Contains(actual, expected) {
		return fmt.Errorf("%q does not contain %q", actual, expected)
	}
	return nil
})

func withMockDB(t *testing.T, p *Pipeline) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(containsMatcher))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p.Provisioner = sqlserver.NewProvisioner()
	p.Open = func(context.Context, string) (*sql.DB, error) { return db, nil }
	return mock
}

func expectSetup(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE MASTER KEY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE DATABASE SCOPED CREDENTIAL").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA [dbo]").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestManifestToSQL(t *testing.T) {
	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())
	mock := withMockDB(t, p)

	expectSetup(mock)
	mock.ExpectExec("DROP VIEW [dbo].[CustTable]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE VIEW [dbo].[CustTable]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP VIEW [dbo].[CustGroup]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE VIEW [dbo].[CustGroup]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	res, err := p.ManifestToSQL(context.Background(), map[string]string{
		config.KeyManifestURL: root,
		config.KeySQLEndpoint: "sqlserver://ondemand",
	}, "")
	require.NoError(t, err)
	assert.Len(t, model.NewSQLStatements(res.Statements).Statements, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestToSQL_LogsCarryInvocationID(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })

	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())
	mock := withMockDB(t, p)
	expectSetup(mock)
	for i := 0; i < 4; i++ {
		mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()
	buf.Reset()

	_, err := p.ManifestToSQL(context.Background(), map[string]string{
		config.KeyManifestURL: root,
		config.KeySQLEndpoint: "sqlserver://ondemand",
	}, "")
	require.NoError(t, err)

	ids := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		msg, _ := entry["message"].(string)
		id, _ := entry["invocation"].(string)
		ids[msg] = id
	}
	for _, msg := range []string{"manifest read", "database provisioned", "DDL applied"} {
		assert.NotEmpty(t, ids[msg], msg)
	}
	assert.Equal(t, ids["reading manifest metadata"], ids["DDL applied"])
}

func TestManifestToSQL_PartialApply(t *testing.T) {
	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())
	mock := withMockDB(t, p)

	expectSetup(mock)
	mock.ExpectExec("DROP VIEW [dbo].[CustTable]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE VIEW [dbo].[CustTable]").WillReturnError(errors.New("invalid object"))
	mock.ExpectClose()

	res, err := p.ManifestToSQL(context.Background(), map[string]string{
		config.KeyManifestURL: root,
		config.KeySQLEndpoint: "sqlserver://ondemand",
	}, "")

	var execErr *sqlserver.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.Index)
	require.NotNil(t, res)
	assert.Len(t, res.Statements, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestToSQL_RequiresEndpoint(t *testing.T) {
	p, _ := newPipeline(t)
	root := fixture(t, p, t.TempDir())
	p.Open = func(context.Context, string) (*sql.DB, error) {
		t.Fatal("must not connect without an endpoint")
		return nil, nil
	}

	_, err := p.ManifestToSQL(context.Background(), map[string]string{config.KeyManifestURL: root}, "")

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KeySQLEndpoint, cfgErr.Key)
}

func TestModelJSON(t *testing.T) {
	p, _ := newPipeline(t)
	base := t.TempDir()
	fixture(t, p, base)

	m, err := p.ModelJSON(context.Background(), map[string]string{
		config.KeyRootFolder:       base,
		config.KeyManifestLocation: "Tables",
		config.KeyManifestName:     "Tables",
	})
	require.NoError(t, err)

	require.Len(t, m.Entities, 2)
	assert.Equal(t, "CustTable", m.Entities[0].Name)
	assert.FileExists(t, filepath.Join(base, "Tables", "model.json"))
}

func TestModelJSON_RequiresManifestName(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.ModelJSON(context.Background(), map[string]string{
		config.KeyRootFolder:       t.TempDir(),
		config.KeyManifestLocation: "Tables",
	})
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KeyManifestName, cfgErr.Key)
}

func TestDefinitions(t *testing.T) {
	p, appDir := newPipeline(t)
	path := filepath.Join(appDir, DefinitionsFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"tableName": "CustTable", "dataLocation": "Tables/AR/CustTable", "manifestLocation": "Tables/AR", "manifestName": "AR"},
  {"tableName": "VendTable", "dataLocation": "Tables/AP/VendTable", "manifestLocation": "Tables/AP", "manifestName": "AP"},
  {"tableName": "LedgerTrans", "dataLocation": "Tables/GL/LedgerTrans", "manifestLocation": "Tables/GL", "manifestName": "GL"}
]`), 0o644))

	all, err := p.Definitions(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := p.Definitions(context.Background(), map[string]string{config.KeyTableList: "custtable, LedgerTrans"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "CustTable", some[0].TableName)
	assert.Equal(t, "LedgerTrans", some[1].TableName)
}

func TestDefinitions_MissingFile(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.Definitions(context.Background(), nil)
	var nfErr *manifest.NotFoundError
	assert.True(t, errors.As(err, &nfErr))
}
