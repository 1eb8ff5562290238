package templates

import (
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"ident": Ident,
	"str":   Str,
}

// Ident brackets a SQL identifier.
func Ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Str renders a single-quoted SQL string literal.
func Str(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}
