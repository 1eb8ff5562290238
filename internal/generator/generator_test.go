package generator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdmutil/internal/config"
	"cdmutil/internal/model"
)

const root = "https://acct.dfs.core.windows.net/fs"

func orders() model.SQLMetadata {
	return model.SQLMetadata{
		TableName:    "Orders",
		Schema:       "dbo",
		DataLocation: root + "/sales/Orders/*.csv",
		Columns: []model.SQLColumn{
			{Name: "Id", SQLType: "BIGINT", SourceType: "BIGINT"},
			{Name: "Amount", SQLType: "DECIMAL(18,2)", SourceType: "DECIMAL(18,2)", Nullable: true},
		},
	}
}

func opts() model.WarehouseOptions {
	return model.WarehouseOptions{
		ExternalDataSource: "ds1",
		DataSourceLocation: root,
		Schema:             "dbo",
		FileFormatName:     "fmt1",
	}
}

func kinds(stmts []model.SQLStatement) []model.StatementKind {
	out := make([]model.StatementKind, len(stmts))
	for i, s := range stmts {
		out[i] = s.Kind
	}
	return out
}

func TestGenerate_Order(t *testing.T) {
	stmts, err := Generate([]model.SQLMetadata{orders()}, model.DDLTypeExternalTable, opts(), nil)
	require.NoError(t, err)

	assert.Equal(t, []model.StatementKind{
		model.KindCreateDataSource,
		model.KindCreateFileFormat,
		model.KindDropIfExists,
		model.KindCreateTable,
	}, kinds(stmts))

	assert.Contains(t, stmts[0].Text, "CREATE EXTERNAL DATA SOURCE [ds1]")
	assert.Contains(t, stmts[0].Text, "'"+root+"'")
	assert.Contains(t, stmts[1].Text, "CREATE EXTERNAL FILE FORMAT [fmt1]")
	assert.Contains(t, stmts[2].Text, "DROP EXTERNAL TABLE [dbo].[Orders]")
	assert.Equal(t, "dbo.Orders", stmts[3].Object)
	assert.Contains(t, stmts[3].Text, "[Id] BIGINT NOT NULL")
	assert.Contains(t, stmts[3].Text, "[Amount] DECIMAL(18,2)")
	assert.Contains(t, stmts[3].Text, "LOCATION = 'sales/Orders/*.csv'")
	assert.Contains(t, stmts[3].Text, "DATA_SOURCE = [ds1]")
	assert.Contains(t, stmts[3].Text, "FILE_FORMAT = [fmt1]")
}

func TestGenerate_RecordsKeepInputOrder(t *testing.T) {
	a, b := orders(), orders()
	b.TableName = "Customers"

	stmts, err := Generate([]model.SQLMetadata{a, b}, "", model.WarehouseOptions{Schema: "dbo"}, nil)
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Equal(t, []string{"dbo.Orders", "dbo.Orders", "dbo.Customers", "dbo.Customers"},
		[]string{stmts[0].Object, stmts[1].Object, stmts[2].Object, stmts[3].Object})
	assert.Equal(t, model.KindCreateView, stmts[1].Kind)
}

func TestGenerate_DDLType(t *testing.T) {
	tests := []struct {
		ddlType string
		kind    model.StatementKind
		wantErr bool
	}{
		{"", model.KindCreateView, false},
		{"SynapseView", model.KindCreateView, false},
		{"synapseview", model.KindCreateView, false},
		{"SynapseExternalTable", model.KindCreateTable, false},
		{"SynapseTable", model.KindCreateTable, false},
		{"Snowflake", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.ddlType, func(t *testing.T) {
			stmts, err := Generate([]model.SQLMetadata{orders()}, tt.ddlType, opts(), nil)
			if tt.wantErr {
				var genErr *Error
				require.True(t, errors.As(err, &genErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, stmts[len(stmts)-1].Kind)
		})
	}
}

func TestGenerate_View(t *testing.T) {
	md := orders()
	md.Columns[1].Expression = "TRY_CONVERT(DECIMAL(18,2), [Amount])"
	md.DataLocation = root + "/sales/Orders/*.parquet"

	stmts, err := Generate([]model.SQLMetadata{md}, model.DDLTypeView, opts(), nil)
	require.NoError(t, err)

	view := stmts[len(stmts)-1].Text
	assert.Contains(t, view, "CREATE VIEW [dbo].[Orders] AS")
	assert.Contains(t, view, "r.[Id]")
	assert.Contains(t, view, "TRY_CONVERT(DECIMAL(18,2), [Amount]) AS [Amount]")
	assert.Contains(t, view, "BULK 'sales/Orders/*.parquet'")
	assert.Contains(t, view, "DATA_SOURCE = 'ds1'")
	assert.Contains(t, view, "FORMAT = 'PARQUET'")
	assert.NotContains(t, view, "PARSER_VERSION")
	assert.Contains(t, stmts[len(stmts)-2].Text, "DROP VIEW [dbo].[Orders]")
}

func TestGenerate_ViewWithoutDataSourceUsesAbsoluteLocation(t *testing.T) {
	stmts, err := Generate([]model.SQLMetadata{orders()}, "", model.WarehouseOptions{Schema: "dbo"}, nil)
	require.NoError(t, err)

	require.Len(t, stmts, 2)
	view := stmts[1].Text
	assert.Contains(t, view, "BULK '"+root+"/sales/Orders/*.csv'")
	assert.NotContains(t, view, "DATA_SOURCE")
	assert.Contains(t, view, "PARSER_VERSION = '2.0'")
}

func TestGenerate_SchemaFallsBackToOptions(t *testing.T) {
	md := orders()
	md.Schema = ""
	o := opts()
	o.Schema = "cdm"

	stmts, err := Generate([]model.SQLMetadata{md}, "", o, nil)
	require.NoError(t, err)
	assert.Equal(t, "cdm.Orders", stmts[len(stmts)-1].Object)
}

func TestGenerate_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.SQLMetadata, *model.WarehouseOptions)
		ddlType string
		field   string
	}{
		{"table", func(m *model.SQLMetadata, _ *model.WarehouseOptions) { m.TableName = "" }, "", "table"},
		{"schema", func(m *model.SQLMetadata, o *model.WarehouseOptions) { m.Schema, o.Schema = "", "" }, "", "schema"},
		{"location", func(m *model.SQLMetadata, _ *model.WarehouseOptions) { m.DataLocation = "" }, "", "location"},
		{"columns", func(m *model.SQLMetadata, _ *model.WarehouseOptions) { m.Columns = nil }, "", "columns"},
		{"column type", func(m *model.SQLMetadata, _ *model.WarehouseOptions) { m.Columns[0].SQLType = "" }, "", "type of Id"},
		{"data source location", func(_ *model.SQLMetadata, o *model.WarehouseOptions) { o.DataSourceLocation = "" }, "", "dataSourceLocation"},
		{"file format for tables", func(_ *model.SQLMetadata, o *model.WarehouseOptions) { o.FileFormatName = "" }, model.DDLTypeTable, "fileFormatName"},
		{"data source for tables", func(_ *model.SQLMetadata, o *model.WarehouseOptions) { o.ExternalDataSource = "" }, model.DDLTypeTable, "externalDataSource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, o := orders(), opts()
			tt.mutate(&md, &o)

			stmts, err := Generate([]model.SQLMetadata{md}, tt.ddlType, o, nil)
			assert.Nil(t, stmts)

			var genErr *Error
			require.True(t, errors.As(err, &genErr), "got %v", err)
			assert.Equal(t, tt.field, genErr.Field)
		})
	}
}

func TestGenerate_ViewRules(t *testing.T) {
	a, b := orders(), orders()
	b.TableName = "Customers"
	rules := []config.ViewRule{
		{Find: "SELECT", Replace: "SELECT TOP 100"},
		{Table: "customers", Find: "r.[Id]", Replace: "r.[Id] AS [CustomerId]"},
	}

	stmts, err := Generate([]model.SQLMetadata{a, b}, "", opts(), rules)
	require.NoError(t, err)

	ordersView, customersView := stmts[3].Text, stmts[5].Text
	assert.Contains(t, ordersView, "SELECT TOP 100")
	assert.NotContains(t, ordersView, "[CustomerId]")
	assert.Contains(t, customersView, "SELECT TOP 100")
	assert.Contains(t, customersView, "r.[Id] AS [CustomerId]")
}

func TestGenerate_ViewRulesSkipTables(t *testing.T) {
	rules := []config.ViewRule{{Find: "CREATE", Replace: "CREATE OR ALTER"}}

	stmts, err := Generate([]model.SQLMetadata{orders()}, model.DDLTypeTable, opts(), rules)
	require.NoError(t, err)
	assert.NotContains(t, stmts[len(stmts)-1].Text, "CREATE OR ALTER")
}

func TestGenerate_QuotesIdentifiersAndLiterals(t *testing.T) {
	md := orders()
	md.TableName = "Odd]Name"
	md.DataLocation = root + "/it's/*.csv"

	stmts, err := Generate([]model.SQLMetadata{md}, "", opts(), nil)
	require.NoError(t, err)

	view := stmts[len(stmts)-1].Text
	assert.Contains(t, view, "[Odd]]Name]")
	assert.Contains(t, view, "'it''s/*.csv'")
}

func TestRenderScript(t *testing.T) {
	stmts, err := Generate([]model.SQLMetadata{orders()}, "", opts(), nil)
	require.NoError(t, err)

	script := RenderScript(stmts)
	assert.Equal(t, len(stmts), strings.Count(script, "\nGO\n"))
	assert.True(t, strings.HasPrefix(script, "-- create-data-source ds1\n"))
}

func TestRenderToFile(t *testing.T) {
	stmts, err := Generate([]model.SQLMetadata{orders()}, "", opts(), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "orders.sql")
	require.NoError(t, RenderToFile(stmts, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, RenderScript(stmts), string(data))
}
