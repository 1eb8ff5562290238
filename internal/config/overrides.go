package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cdmutil/internal/model"
)

// ColumnOverride forces the SQL type (and optionally the select expression)
// of one exact (table, column) pair.
type ColumnOverride struct {
	Table      string `yaml:"table"`
	Column     string `yaml:"column"`
	SQLType    string `yaml:"sqlType"`
	Expression string `yaml:"expression,omitempty"`
}

// TypeOverride extends the default CDM type table.
type TypeOverride struct {
	CDMType string `yaml:"cdmType"`
	SQLType string `yaml:"sqlType"`
}

// ColumnOverrides is the content of SourceColumnProperties.json.
type ColumnOverrides struct {
	Columns []ColumnOverride `yaml:"columns"`
	Types   []TypeOverride   `yaml:"types"`

	byColumn map[string]ColumnOverride
	byType   map[string]string
}

// ViewRule rewrites generated view text verbatim. An empty Table applies to every view.
type ViewRule struct {
	Table   string `yaml:"table,omitempty"`
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

type viewRulesFile struct {
	Rules []ViewRule `yaml:"rules"`
}

func columnKey(table, column string) string {
	return table + "\x00" + column
}

func (o *ColumnOverrides) index() {
	o.byColumn = make(map[string]ColumnOverride, len(o.Columns))
	for _, c := range o.Columns {
		o.byColumn[columnKey(c.Table, c.Column)] = c
	}
	o.byType = make(map[string]string, len(o.Types))
	for _, t := range o.Types {
		o.byType[strings.ToLower(t.CDMType)] = t.SQLType
	}
}

// Column returns the override for the exact (table, column) key.
func (o *ColumnOverrides) Column(table, column string) (ColumnOverride, bool) {
	if o == nil {
		return ColumnOverride{}, false
	}
	if o.byColumn == nil {
		o.index()
	}
	c, ok := o.byColumn[columnKey(table, column)]
	return c, ok
}

// Type returns the SQL type declared for a CDM type, matched case-insensitively.
func (o *ColumnOverrides) Type(cdmType string) (string, bool) {
	if o == nil {
		return "", false
	}
	if o.byType == nil {
		o.index()
	}
	t, ok := o.byType[strings.ToLower(cdmType)]
	return t, ok
}

// ParseColumnOverrides parses SourceColumnProperties content (JSON or YAML).
func ParseColumnOverrides(data []byte) (*ColumnOverrides, error) {
	var o ColumnOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	if err := validateColumnOverrides(&o); err != nil {
		return nil, err
	}
	o.index()
	return &o, nil
}

// LoadColumnOverrides reads the column-property file. A missing file means no overrides.
func LoadColumnOverrides(path string) (*ColumnOverrides, error) {
	data, err := readOptional(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &ColumnOverrides{}, nil
	}
	o, err := ParseColumnOverrides(data)
	if err != nil {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}
	return o, nil
}

// ParseViewRules parses ReplaceViewSyntax content. Both {"rules": [...]} and a bare list are accepted.
func ParseViewRules(data []byte) ([]ViewRule, error) {
	var list []ViewRule
	if err := yaml.Unmarshal(data, &list); err != nil {
		var f viewRulesFile
		if err2 := yaml.Unmarshal(data, &f); err2 != nil {
			return nil, err2
		}
		list = f.Rules
	}

	var problems []string
	for i, r := range list {
		if r.Find == "" {
			problems = append(problems, fmt.Sprintf("rules[%d]: empty find", i))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid view rules:\n- %s", strings.Join(problems, "\n- "))
	}
	return list, nil
}

// LoadViewRules reads the view-syntax replacement file. A missing file means no rules.
func LoadViewRules(path string) ([]ViewRule, error) {
	data, err := readOptional(path)
	if err != nil || data == nil {
		return nil, err
	}
	rules, err := ParseViewRules(data)
	if err != nil {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}
	return rules, nil
}

// LoadDefinitions reads Artifacts.json.
func LoadDefinitions(path string) ([]model.ManifestDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []model.ManifestDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}
	return defs, nil
}

func readOptional(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// validateColumnOverrides collects every structural problem instead of stopping at the first.
func validateColumnOverrides(o *ColumnOverrides) error {
	var problems []string
	seen := map[string]bool{}

	for i, c := range o.Columns {
		ctx := fmt.Sprintf("columns[%d] (%s.%s)", i, c.Table, c.Column)
		if strings.TrimSpace(c.Table) == "" || strings.TrimSpace(c.Column) == "" {
			problems = append(problems, ctx+": table and column are required")
			continue
		}
		if strings.TrimSpace(c.SQLType) == "" {
			problems = append(problems, ctx+": sqlType is empty")
		}
		key := columnKey(c.Table, c.Column)
		if seen[key] {
			problems = append(problems, ctx+": duplicated column override")
		}
		seen[key] = true
	}
	for i, t := range o.Types {
		if strings.TrimSpace(t.CDMType) == "" || strings.TrimSpace(t.SQLType) == "" {
			problems = append(problems, fmt.Sprintf("types[%d]: cdmType and sqlType are required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid column overrides:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
