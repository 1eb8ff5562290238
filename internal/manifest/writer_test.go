package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdmutil/internal/lake"
	"cdmutil/internal/model"
)

func sampleEntityList() model.EntityList {
	return model.EntityList{
		ManifestName: "Group",
		Entities: []model.EntityDescriptor{
			{
				Name: "CustGroup",
				Attributes: []model.CDMAttribute{
					{Name: "CustGroup", DataFormat: "String", MaximumLength: 10},
					{Name: "ModifiedDateTime", DataFormat: "DateTime"},
				},
			},
			{
				Name:         "CustTable",
				DataLocation: "data/CustTable",
				Attributes:   []model.CDMAttribute{{Name: "AccountNum", DataFormat: "String"}},
			},
		},
	}
}

func readDoc(t *testing.T, path string) Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestWriterWritesHierarchy(t *testing.T) {
	base := t.TempDir()
	layout := lake.NewLayout("", base, false)
	w := NewWriter(FileStore{}, layout)

	h := BuildHierarchy(sampleEntityList(), "Tables/AccountReceivable/Group")
	require.NoError(t, w.Write(context.Background(), h, true))

	tables := readDoc(t, filepath.Join(base, "Tables", "Tables.manifest.cdm.json"))
	assert.Equal(t, []SubManifestRef{{
		ManifestName: "AccountReceivable",
		Definition:   "AccountReceivable/AccountReceivable.manifest.cdm.json",
	}}, tables.SubManifests)
	assert.Empty(t, tables.Entities)

	ar := readDoc(t, filepath.Join(base, "Tables", "AccountReceivable", "AccountReceivable.manifest.cdm.json"))
	require.Len(t, ar.SubManifests, 1)
	assert.Equal(t, "Group/Group.manifest.cdm.json", ar.SubManifests[0].Definition)

	group := readDoc(t, filepath.Join(base, "Tables", "AccountReceivable", "Group", "Group.manifest.cdm.json"))
	require.Len(t, group.Entities, 2)
	assert.Equal(t, "CustGroup.cdm.json/CustGroup", group.Entities[0].EntityPath)
	assert.Equal(t, "data/CustTable", group.Entities[1].DataPartitionPatterns[0].RootLocation)

	assert.FileExists(t, filepath.Join(base, "Tables", "AccountReceivable", "Group", "CustGroup.cdm.json"))
	assert.FileExists(t, filepath.Join(base, "Tables", "AccountReceivable", "Group", "model.json"))
	assert.NoFileExists(t, filepath.Join(base, "Tables", "model.json"))
}

func TestWriterIdempotent(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(FileStore{}, lake.NewLayout("", base, false))
	list := sampleEntityList()

	for i := 0; i < 2; i++ {
		h := BuildHierarchy(list, "Tables/AccountReceivable/Group")
		require.NoError(t, w.Write(context.Background(), h, false))
	}

	tables := readDoc(t, filepath.Join(base, "Tables", "Tables.manifest.cdm.json"))
	assert.Len(t, tables.SubManifests, 1)
	group := readDoc(t, filepath.Join(base, "Tables", "AccountReceivable", "Group", "Group.manifest.cdm.json"))
	assert.Len(t, group.Entities, 2)

	// A second request for a sibling folder keeps the first link.
	sibling := model.EntityList{Entities: []model.EntityDescriptor{{
		Name:       "VendTable",
		Attributes: []model.CDMAttribute{{Name: "AccountNum", DataFormat: "String"}},
	}}}
	require.NoError(t, w.Write(context.Background(), BuildHierarchy(sibling, "Tables/AccountPayable"), false))

	tables = readDoc(t, filepath.Join(base, "Tables", "Tables.manifest.cdm.json"))
	require.Len(t, tables.SubManifests, 2)
	assert.Equal(t, "AccountReceivable", tables.SubManifests[0].ManifestName)
	assert.Equal(t, "AccountPayable", tables.SubManifests[1].ManifestName)
}

func TestWriterThenExtract(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(FileStore{}, lake.NewLayout("", base, false))
	require.NoError(t, w.Write(context.Background(), BuildHierarchy(sampleEntityList(), "Tables/AccountReceivable/Group"), false))

	cfg := model.AppConfiguration{
		ManifestURL: filepath.Join(base, "Tables", "Tables.manifest.cdm.json"),
		Options:     model.DefaultWarehouseOptions(),
	}
	md, err := NewExtractor(FileStore{}).Extract(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"CustGroup", "CustTable"}, tableNames(md))
	assert.Equal(t, "DateTime", md[0].Attributes[1].DataFormat)
}

func TestWriterRejectsCorruptExisting(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "Tables", "Tables.manifest.cdm.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	w := NewWriter(FileStore{}, lake.NewLayout("", base, false))
	err := w.Write(context.Background(), BuildHierarchy(sampleEntityList(), "Tables/AR"), false)

	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestModelJSONFromMetadata(t *testing.T) {
	m := ModelJSONFromMetadata("Sales", []model.SQLMetadata{{
		TableName:    "Orders",
		DataLocation: "https://acct/fs/Orders/*.csv",
		Attributes: []model.CDMAttribute{
			{Name: "Id", DataFormat: "Int32"},
			{Name: "When", DataFormat: "DateTimeOffset"},
			{Name: "Other", DataFormat: "Mystery"},
		},
	}})

	require.Len(t, m.Entities, 1)
	assert.Equal(t, "LocalEntity", m.Entities[0].Type)
	assert.Equal(t, []ModelAttribute{
		{Name: "Id", DataType: "int64"},
		{Name: "When", DataType: "dateTimeOffset"},
		{Name: "Other", DataType: "string"},
	}, m.Entities[0].Attributes)
}

func TestFilterDefinitions(t *testing.T) {
	defs := []model.ManifestDefinition{
		{TableName: "CustTable"}, {TableName: "VendTable"}, {TableName: "LedgerJournal"},
	}

	assert.Len(t, FilterDefinitions(defs, ""), 3)
	got := FilterDefinitions(defs, " custtable, LEDGERJOURNAL ,missing")
	require.Len(t, got, 2)
	assert.Equal(t, "CustTable", got[0].TableName)
	assert.Equal(t, "LedgerJournal", got[1].TableName)
}
