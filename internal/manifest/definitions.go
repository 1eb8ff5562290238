package manifest

import (
	"strings"

	"cdmutil/internal/model"
)

// FilterDefinitions keeps the definitions whose table is in the comma-separated
// tableList (case-insensitive). An empty list keeps everything.
func FilterDefinitions(defs []model.ManifestDefinition, tableList string) []model.ManifestDefinition {
	wanted := map[string]bool{}
	for _, t := range strings.Split(tableList, ",") {
		if t = strings.TrimSpace(t); t != "" {
			wanted[strings.ToLower(t)] = true
		}
	}
	if len(wanted) == 0 {
		return defs
	}

	out := make([]model.ManifestDefinition, 0, len(wanted))
	for _, d := range defs {
		if wanted[strings.ToLower(d.TableName)] {
			out = append(out, d)
		}
	}
	return out
}
