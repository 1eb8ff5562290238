// Package manifest reads and writes CDM manifests: it extracts table metadata
// from a manifest tree and builds manifest hierarchies from entity lists.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"cdmutil/internal/lake"
	"cdmutil/internal/model"
)

const (
	schemaVersion     = "1.0.0"
	localEntityType   = "LocalEntity"
	defaultGlob       = "*.csv"
	defaultPartFormat = "csv"
)

// Document is a *.manifest.cdm.json file.
type Document struct {
	JSONSchemaSemanticVersion string              `json:"jsonSchemaSemanticVersion,omitempty"`
	ManifestName              string              `json:"manifestName"`
	Entities                  []EntityDeclaration `json:"entities,omitempty"`
	SubManifests              []SubManifestRef    `json:"subManifests,omitempty"`
}

type EntityDeclaration struct {
	Type                  string             `json:"type,omitempty"`
	EntityName            string             `json:"entityName"`
	EntityPath            string             `json:"entityPath"`
	DataPartitionPatterns []PartitionPattern `json:"dataPartitionPatterns,omitempty"`
	DataPartitions        []Partition        `json:"dataPartitions,omitempty"`
}

type PartitionPattern struct {
	Name         string `json:"name,omitempty"`
	RootLocation string `json:"rootLocation"`
	GlobPattern  string `json:"globPattern,omitempty"`
}

type Partition struct {
	Location string `json:"location"`
}

type SubManifestRef struct {
	ManifestName string `json:"manifestName"`
	Definition   string `json:"definition"`
}

// EntityDocument is a <Entity>.cdm.json file.
type EntityDocument struct {
	JSONSchemaSemanticVersion string             `json:"jsonSchemaSemanticVersion,omitempty"`
	Definitions               []EntityDefinition `json:"definitions"`
}

type EntityDefinition struct {
	EntityName    string               `json:"entityName"`
	HasAttributes []model.CDMAttribute `json:"hasAttributes"`
}

func ParseManifest(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var problems []string
	for i, e := range doc.Entities {
		if strings.TrimSpace(e.EntityName) == "" {
			problems = append(problems, fmt.Sprintf("entities[%d]: entityName is empty", i))
		}
	}
	for i, s := range doc.SubManifests {
		if strings.TrimSpace(s.Definition) == "" {
			problems = append(problems, fmt.Sprintf("subManifests[%d] (%s): definition is empty", i, s.ManifestName))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return &doc, nil
}

func ParseEntityDocument(data []byte) (*EntityDocument, error) {
	var doc EntityDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Definition returns the entity definition named name.
func (d *EntityDocument) Definition(name string) (EntityDefinition, bool) {
	for _, def := range d.Definitions {
		if def.EntityName == name {
			return def, true
		}
	}
	if len(d.Definitions) == 1 && name == "" {
		return d.Definitions[0], true
	}
	return EntityDefinition{}, false
}

// splitEntityPath splits "Orders.cdm.json/Orders" into the document path and
// the definition name. A path without fragment names the entity itself.
func splitEntityPath(entityPath, entityName string) (string, string) {
	idx := strings.LastIndex(strings.ToLower(entityPath), lake.EntitySuffix)
	if idx < 0 {
		return entityPath, entityName
	}
	docPath := entityPath[:idx+len(lake.EntitySuffix)]
	fragment := strings.Trim(entityPath[idx+len(lake.EntitySuffix):], "/")
	if fragment == "" {
		fragment = entityName
	}
	return docPath, fragment
}

// dataLocation resolves where the entity's data files live, relative to the manifest.
func (e EntityDeclaration) dataLocation(manifestLocation string) (string, error) {
	switch {
	case len(e.DataPartitionPatterns) > 0:
		p := e.DataPartitionPatterns[0]
		root, err := lake.Resolve(manifestLocation, p.RootLocation)
		if err != nil {
			return "", err
		}
		glob := strings.TrimPrefix(p.GlobPattern, "/")
		if glob == "" {
			glob = defaultGlob
		}
		return joinData(root, glob), nil
	case len(e.DataPartitions) == 1:
		return lake.Resolve(manifestLocation, e.DataPartitions[0].Location)
	case len(e.DataPartitions) > 1:
		first, err := lake.Resolve(manifestLocation, e.DataPartitions[0].Location)
		if err != nil {
			return "", err
		}
		ext := defaultPartFormat
		if i := strings.LastIndex(first, "."); i > strings.LastIndexAny(first, `/\`) {
			ext = first[i+1:]
		}
		return joinData(lake.Dir(first), "*."+ext), nil
	}
	root, err := lake.Resolve(manifestLocation, e.EntityName)
	if err != nil {
		return "", err
	}
	return joinData(root, defaultGlob), nil
}

func joinData(root, name string) string {
	return strings.TrimSuffix(root, "/") + "/" + name
}

func declare(e model.EntityDescriptor) EntityDeclaration {
	root := e.DataLocation
	if root == "" {
		root = e.Name
	}
	glob := e.PartitionPattern
	if glob == "" {
		glob = defaultGlob
	}
	return EntityDeclaration{
		Type:       localEntityType,
		EntityName: e.Name,
		EntityPath: e.Name + lake.EntitySuffix + "/" + e.Name,
		DataPartitionPatterns: []PartitionPattern{{
			Name:         e.Name,
			RootLocation: root,
			GlobPattern:  glob,
		}},
	}
}

func marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
