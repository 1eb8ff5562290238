// Package mapper resolves CDM attribute types into Synapse SQL column types.
package mapper

import (
	"fmt"
	"strings"

	"cdmutil/internal/config"
	"cdmutil/internal/model"
	"cdmutil/internal/templates"
)

const (
	dateStringType = "NVARCHAR(30)"
	enumStringType = "NVARCHAR(256)"
	maxNVarChar    = 4000
	maxPrecision   = 38
	// ISO-8601 style for CONVERT.
	isoStyle = 126
)

// UnsupportedTypeError names a CDM type neither the default table nor the overrides know.
type UnsupportedTypeError struct {
	Type   string
	Table  string
	Column string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported CDM type %q for column %s.%s", e.Type, e.Table, e.Column)
}

func isDateTime(format string) bool {
	switch strings.ToLower(format) {
	case "datetime", "datetimeoffset", "date", "time":
		return true
	}
	return false
}

func isEnum(a model.CDMAttribute) bool {
	return len(a.EnumValues) > 0 || strings.EqualFold(a.DataType, "enumeration")
}

// defaultType is the fixed CDM data format → Synapse type table.
func defaultType(a model.CDMAttribute) (string, bool) {
	switch strings.ToLower(a.DataFormat) {
	case "int16":
		return "SMALLINT", true
	case "int32":
		return "INT", true
	case "int64":
		return "BIGINT", true
	case "byte":
		return "TINYINT", true
	case "float", "double":
		return "FLOAT", true
	case "decimal":
		if a.Precision > 0 {
			precision := min(a.Precision, maxPrecision)
			scale := min(max(a.Scale, 0), precision)
			return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale), true
		}
		return "DECIMAL(38,18)", true
	case "boolean":
		return "BIT", true
	case "string":
		if a.MaximumLength > 0 && a.MaximumLength <= maxNVarChar {
			return fmt.Sprintf("NVARCHAR(%d)", a.MaximumLength), true
		}
		return "NVARCHAR(MAX)", true
	case "guid":
		return "UNIQUEIDENTIFIER", true
	case "datetime":
		return "DATETIME2", true
	case "datetimeoffset":
		return "DATETIMEOFFSET", true
	case "date":
		return "DATE", true
	case "time":
		return "TIME", true
	case "binary":
		return "VARBINARY(MAX)", true
	case "json":
		return "NVARCHAR(MAX)", true
	}
	return "", false
}

// enumLookup renders a CASE over the enum values, falling back to the raw value.
func enumLookup(a model.CDMAttribute) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CASE %s", templates.Ident(a.Name))
	for _, v := range a.EnumValues {
		fmt.Fprintf(&b, " WHEN %d THEN %s", v.Value, templates.Str(v.Name))
	}
	fmt.Fprintf(&b, " ELSE CAST(%s AS %s) END", templates.Ident(a.Name), enumStringType)
	return b.String()
}

// MapColumn resolves one attribute of table. A column override for the exact
// (table, column) key wins over the default table and every option flag.
func MapColumn(table string, a model.CDMAttribute, overrides *config.ColumnOverrides, opts model.WarehouseOptions) (model.SQLColumn, error) {
	col := model.SQLColumn{
		Name:     a.Name,
		CDMType:  a.DataFormat,
		Nullable: a.IsNullable,
	}

	if o, ok := overrides.Column(table, a.Name); ok {
		col.SQLType = o.SQLType
		col.SourceType = o.SQLType
		col.Expression = o.Expression
		col.Overridden = true
		return col, nil
	}

	sqlType, ok := overrides.Type(a.DataFormat)
	if !ok {
		sqlType, ok = defaultType(a)
	}
	if !ok {
		return model.SQLColumn{}, &UnsupportedTypeError{Type: a.DataFormat, Table: table, Column: a.Name}
	}
	col.SQLType = sqlType
	col.SourceType = sqlType

	switch {
	case isDateTime(a.DataFormat):
		if opts.DateTimeAsString {
			col.SQLType = dateStringType
			col.SourceType = dateStringType
			col.DateAsString = true
		}
		if opts.ConvertDateTime {
			col.SourceType = dateStringType
			col.DateConverted = true
			if opts.DateTimeAsString {
				col.Expression = fmt.Sprintf("CONVERT(%s, TRY_CONVERT(%s, %s), %d)", dateStringType, sqlType, templates.Ident(a.Name), isoStyle)
			} else {
				col.Expression = fmt.Sprintf("TRY_CONVERT(%s, %s)", sqlType, templates.Ident(a.Name))
			}
		}
	case isEnum(a) && opts.TranslateEnum:
		col.SQLType = enumStringType
		col.EnumTranslated = true
		if len(a.EnumValues) > 0 {
			col.Expression = enumLookup(a)
		} else {
			col.Expression = fmt.Sprintf("CAST(%s AS %s)", templates.Ident(a.Name), enumStringType)
		}
	}
	return col, nil
}

// MapTable resolves every attribute of md into md.Columns.
func MapTable(md model.SQLMetadata, overrides *config.ColumnOverrides, opts model.WarehouseOptions) (model.SQLMetadata, error) {
	cols := make([]model.SQLColumn, 0, len(md.Attributes))
	for _, a := range md.Attributes {
		c, err := MapColumn(md.TableName, a, overrides, opts)
		if err != nil {
			return model.SQLMetadata{}, err
		}
		cols = append(cols, c)
	}
	md.Columns = cols
	return md, nil
}

// Apply maps every record, preserving order. It stops at the first unsupported type.
func Apply(metadata []model.SQLMetadata, overrides *config.ColumnOverrides, opts model.WarehouseOptions) ([]model.SQLMetadata, error) {
	out := make([]model.SQLMetadata, 0, len(metadata))
	for _, md := range metadata {
		mapped, err := MapTable(md, overrides, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}
