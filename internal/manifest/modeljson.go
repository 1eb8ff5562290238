package manifest

import (
	"strings"

	"cdmutil/internal/model"
)

// ModelJSON is the legacy CDM folder descriptor (model.json).
type ModelJSON struct {
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Entities []ModelEntity `json:"entities"`
}

type ModelEntity struct {
	Type       string           `json:"$type"`
	Name       string           `json:"name"`
	Attributes []ModelAttribute `json:"attributes"`
	Partitions []ModelPartition `json:"partitions,omitempty"`
}

type ModelAttribute struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

type ModelPartition struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// model.json data types per CDM data format.
var modelDataTypes = map[string]string{
	"int16":          "int64",
	"int32":          "int64",
	"int64":          "int64",
	"byte":           "int64",
	"float":          "double",
	"double":         "double",
	"decimal":        "decimal",
	"boolean":        "boolean",
	"string":         "string",
	"guid":           "guid",
	"datetime":       "dateTime",
	"date":           "dateTime",
	"datetimeoffset": "dateTimeOffset",
	"time":           "string",
	"binary":         "string",
	"json":           "string",
}

func modelDataType(format string) string {
	if t, ok := modelDataTypes[strings.ToLower(format)]; ok {
		return t
	}
	return "string"
}

func modelAttributes(attrs []model.CDMAttribute) []ModelAttribute {
	out := make([]ModelAttribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, ModelAttribute{Name: a.Name, DataType: modelDataType(a.DataFormat)})
	}
	return out
}

// ModelJSONFromEntities describes entities from a createManifest request.
func ModelJSONFromEntities(name string, entities []model.EntityDescriptor) ModelJSON {
	m := ModelJSON{Name: name, Version: "1.0"}
	for _, e := range entities {
		loc := e.DataLocation
		if loc == "" {
			loc = e.Name
		}
		m.Entities = append(m.Entities, ModelEntity{
			Type:       localEntityType,
			Name:       e.Name,
			Attributes: modelAttributes(e.Attributes),
			Partitions: []ModelPartition{{Name: e.Name, Location: loc}},
		})
	}
	return m
}

// ModelJSONFromMetadata describes entities extracted from an existing manifest.
func ModelJSONFromMetadata(name string, metadata []model.SQLMetadata) ModelJSON {
	m := ModelJSON{Name: name, Version: "1.0"}
	for _, md := range metadata {
		m.Entities = append(m.Entities, ModelEntity{
			Type:       localEntityType,
			Name:       md.TableName,
			Attributes: modelAttributes(md.Attributes),
			Partitions: []ModelPartition{{Name: md.TableName, Location: md.DataLocation}},
		})
	}
	return m
}
