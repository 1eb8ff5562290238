package templates

import "cdmutil/internal/model"

type DataSource struct {
	Name     string
	Location string
}

type FileFormat struct {
	Name string
}

type Drop struct {
	Schema     string
	Table      string
	ObjectType string // EXTERNAL TABLE | VIEW
}

type ExternalTable struct {
	Schema     string
	Table      string
	Location   string
	DataSource string
	FileFormat string
	Columns    []model.SQLColumn
}

type View struct {
	Schema     string
	Table      string
	Location   string
	DataSource string
	Format     string // CSV | PARQUET
	Columns    []model.SQLColumn
}

var DataSourceTemplate = parse("datasource", `
IF NOT EXISTS (SELECT * FROM sys.external_data_sources WHERE name = {{ str .Name }})
    CREATE EXTERNAL DATA SOURCE {{ ident .Name }} WITH (LOCATION = {{ str .Location }})
`[1:])

var FileFormatTemplate = parse("fileformat", `
IF NOT EXISTS (SELECT * FROM sys.external_file_formats WHERE name = {{ str .Name }})
    CREATE EXTERNAL FILE FORMAT {{ ident .Name }} WITH (
        FORMAT_TYPE = DELIMITEDTEXT,
        FORMAT_OPTIONS (FIELD_TERMINATOR = ',', STRING_DELIMITER = '"', FIRST_ROW = 1, USE_TYPE_DEFAULT = FALSE)
    )
`[1:])

var DropTemplate = parse("drop", `
IF OBJECT_ID({{ str (printf "%s.%s" (ident .Schema) (ident .Table)) }}) IS NOT NULL
    DROP {{ .ObjectType }} {{ ident .Schema }}.{{ ident .Table }}
`[1:])

var ExternalTableTemplate = parse("table", `
CREATE EXTERNAL TABLE {{ ident .Schema }}.{{ ident .Table }} (
{{- range $i, $c := .Columns }}{{ if $i }},{{ end }}
    {{ ident $c.Name }} {{ $c.SQLType }}{{ if not $c.Nullable }} NOT NULL{{ end }}
{{- end }}
)
WITH (
    LOCATION = {{ str .Location }},
    DATA_SOURCE = {{ ident .DataSource }},
    FILE_FORMAT = {{ ident .FileFormat }}
)
`[1:])

var ViewTemplate = parse("view", `
CREATE VIEW {{ ident .Schema }}.{{ ident .Table }} AS
SELECT
{{- range $i, $c := .Columns }}{{ if $i }},{{ end }}
    {{ if $c.Expression }}{{ $c.Expression }} AS {{ ident $c.Name }}{{ else }}r.{{ ident $c.Name }}{{ end }}
{{- end }}
FROM OPENROWSET(
    BULK {{ str .Location }},
{{- if .DataSource }}
    DATA_SOURCE = {{ str .DataSource }},
{{- end }}
{{- if eq .Format "PARQUET" }}
    FORMAT = 'PARQUET'
{{- else }}
    FORMAT = 'CSV',
    PARSER_VERSION = '2.0'
{{- end }}
) WITH (
{{- range $i, $c := .Columns }}{{ if $i }},{{ end }}
    {{ ident $c.Name }} {{ $c.SourceType }}
{{- end }}
) AS r
`[1:])
