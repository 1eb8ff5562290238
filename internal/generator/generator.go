// Package generator turns mapped table metadata into an ordered Synapse DDL batch.
package generator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"cdmutil/internal/config"
	"cdmutil/internal/model"
	"cdmutil/internal/templates"
)

// Error is a DDL generation failure: a required template field was empty or
// a template rendered nothing. It aborts before anything is executed.
type Error struct {
	Object string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generating DDL for %s: %s: %v", e.Object, e.Field, e.Err)
	}
	return fmt.Sprintf("generating DDL for %s: %s is empty", e.Object, e.Field)
}

func (e *Error) Unwrap() error { return e.Err }

// createKind resolves DDLType. Empty means view.
func createKind(ddlType string) (model.StatementKind, error) {
	switch {
	case ddlType == "", strings.EqualFold(ddlType, model.DDLTypeView):
		return model.KindCreateView, nil
	case strings.EqualFold(ddlType, model.DDLTypeExternalTable), strings.EqualFold(ddlType, model.DDLTypeTable):
		return model.KindCreateTable, nil
	}
	return 0, &Error{Object: "batch", Field: "ddlType", Err: fmt.Errorf("unknown DDL type %q", ddlType)}
}

func requireFields(object string, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return &Error{Object: object, Field: fields[i]}
		}
	}
	return nil
}

func render(t *template.Template, object string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", &Error{Object: object, Field: t.Name(), Err: err}
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", &Error{Object: object, Field: t.Name()}
	}
	return out, nil
}

// relativeLocation makes location relative to the data source root when it lives under it.
func relativeLocation(location, root string) string {
	if root == "" {
		return location
	}
	root = strings.TrimSuffix(root, "/")
	if strings.HasPrefix(location, root+"/") {
		return strings.TrimPrefix(location, root+"/")
	}
	return location
}

func fileFormat(location string) string {
	if strings.HasSuffix(strings.ToLower(location), ".parquet") {
		return "PARQUET"
	}
	return "CSV"
}

// Generate emits the data source (when configured), the file format (when
// configured), then for each record in input order a drop-if-exists followed
// by the create. View rules rewrite view text verbatim before emission.
func Generate(metadata []model.SQLMetadata, ddlType string, opts model.WarehouseOptions, rules []config.ViewRule) ([]model.SQLStatement, error) {
	kind, err := createKind(ddlType)
	if err != nil {
		return nil, err
	}

	var stmts []model.SQLStatement

	if opts.ExternalDataSource != "" {
		if err := requireFields(opts.ExternalDataSource, "dataSourceLocation", opts.DataSourceLocation); err != nil {
			return nil, err
		}
		text, err := render(templates.DataSourceTemplate, opts.ExternalDataSource, templates.DataSource{
			Name:     opts.ExternalDataSource,
			Location: opts.DataSourceLocation,
		})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, model.SQLStatement{Kind: model.KindCreateDataSource, Object: opts.ExternalDataSource, Text: text})
	}

	if opts.FileFormatName != "" {
		text, err := render(templates.FileFormatTemplate, opts.FileFormatName, templates.FileFormat{Name: opts.FileFormatName})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, model.SQLStatement{Kind: model.KindCreateFileFormat, Object: opts.FileFormatName, Text: text})
	}

	for _, md := range metadata {
		schema := md.Schema
		if schema == "" {
			schema = opts.Schema
		}
		object := schema + "." + md.TableName
		if err := requireFields(object, "schema", schema, "table", md.TableName, "location", md.DataLocation); err != nil {
			return nil, err
		}
		if len(md.Columns) == 0 {
			return nil, &Error{Object: object, Field: "columns"}
		}
		for _, c := range md.Columns {
			if err := requireFields(object, "column name", c.Name, "type of "+c.Name, c.SQLType); err != nil {
				return nil, err
			}
		}

		location := relativeLocation(md.DataLocation, opts.DataSourceLocation)
		if opts.ExternalDataSource == "" {
			location = md.DataLocation
		}

		var (
			drop   templates.Drop
			create string
		)
		switch kind {
		case model.KindCreateTable:
			if err := requireFields(object, "externalDataSource", opts.ExternalDataSource, "fileFormatName", opts.FileFormatName); err != nil {
				return nil, err
			}
			drop = templates.Drop{Schema: schema, Table: md.TableName, ObjectType: "EXTERNAL TABLE"}
			create, err = render(templates.ExternalTableTemplate, object, templates.ExternalTable{
				Schema:     schema,
				Table:      md.TableName,
				Location:   location,
				DataSource: opts.ExternalDataSource,
				FileFormat: opts.FileFormatName,
				Columns:    md.Columns,
			})
		default:
			drop = templates.Drop{Schema: schema, Table: md.TableName, ObjectType: "VIEW"}
			create, err = render(templates.ViewTemplate, object, templates.View{
				Schema:     schema,
				Table:      md.TableName,
				Location:   location,
				DataSource: opts.ExternalDataSource,
				Format:     fileFormat(md.DataLocation),
				Columns:    md.Columns,
			})
			if err == nil {
				create = ApplyViewRules(create, md.TableName, rules)
			}
		}
		if err != nil {
			return nil, err
		}

		dropText, err := render(templates.DropTemplate, object, drop)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts,
			model.SQLStatement{Kind: model.KindDropIfExists, Object: object, Text: dropText},
			model.SQLStatement{Kind: kind, Object: object, Text: create},
		)
	}

	log.Debug().Int("tables", len(metadata)).Int("statements", len(stmts)).Str("kind", kind.String()).Msg("DDL generated")
	return stmts, nil
}

// ApplyViewRules rewrites view text with every rule scoped to table (or unscoped).
func ApplyViewRules(text, table string, rules []config.ViewRule) string {
	for _, r := range rules {
		if r.Table != "" && !strings.EqualFold(r.Table, table) {
			continue
		}
		text = strings.ReplaceAll(text, r.Find, r.Replace)
	}
	return text
}

// RenderScript joins a batch into one GO-separated script.
func RenderScript(stmts []model.SQLStatement) string {
	var b strings.Builder
	for _, s := range stmts {
		fmt.Fprintf(&b, "-- %s %s\n%s\nGO\n\n", s.Kind, s.Object, s.Text)
	}
	return b.String()
}

// RenderToFile writes the batch as a script at path.
func RenderToFile(stmts []model.SQLStatement, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, []byte(RenderScript(stmts)), 0o644); err != nil {
		return err
	}

	log.Info().Str("path", path).Int("statements", len(stmts)).Msg("script written")
	return nil
}
