package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"cdmutil/internal/lake"
	"cdmutil/internal/model"
)

// Writer persists a Hierarchy: one manifest per node, one entity definition
// per entity, and optionally a model.json next to manifests that hold entities.
type Writer struct {
	Store       Store
	Layout      lake.Layout
	Concurrency int
}

func NewWriter(store Store, layout lake.Layout) *Writer {
	return &Writer{Store: store, Layout: layout, Concurrency: defaultConcurrency}
}

// Write writes every node. Nodes are independent documents and are written
// concurrently. Existing manifests are merged, never duplicated.
func (w *Writer) Write(ctx context.Context, h *Hierarchy, createModelJSON bool) error {
	nodes := h.Nodes()

	g, gctx := errgroup.WithContext(ctx)
	limit := w.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)

	for _, n := range nodes {
		g.Go(func() error {
			return w.writeNode(gctx, n, nodes, createModelJSON)
		})
	}
	return g.Wait()
}

func (w *Writer) writeNode(ctx context.Context, n model.ManifestNode, nodes []model.ManifestNode, createModelJSON bool) error {
	location := w.Layout.ManifestLocation(n.Path, n.ManifestName)

	doc, err := w.existing(ctx, location)
	if err != nil {
		return err
	}
	doc.ManifestName = n.ManifestName

	for _, e := range n.Entities {
		mergeEntity(doc, declare(e))
		if err := w.writeEntity(ctx, n.Path, e); err != nil {
			return err
		}
	}
	for _, ci := range n.Children {
		child := nodes[ci]
		mergeSubManifest(doc, SubManifestRef{
			ManifestName: child.ManifestName,
			Definition:   child.Name + "/" + child.ManifestName + lake.ManifestSuffix,
		})
	}

	data, err := marshal(doc)
	if err != nil {
		return fmt.Errorf("serializing manifest %s: %w", location, err)
	}
	if err := w.Store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("writing manifest %s: %w", location, err)
	}
	log.Ctx(ctx).Info().Str("manifest", location).Int("entities", len(doc.Entities)).Int("subManifests", len(doc.SubManifests)).Msg("manifest written")

	if createModelJSON && len(n.Entities) > 0 {
		m := ModelJSONFromEntities(n.ManifestName, n.Entities)
		if err := w.WriteModelJSON(ctx, n.Path, m); err != nil {
			return err
		}
	}
	return nil
}

// existing loads the manifest already at location, or an empty one.
func (w *Writer) existing(ctx context.Context, location string) (*Document, error) {
	data, err := w.Store.Read(ctx, location)
	if errors.Is(err, fs.ErrNotExist) {
		return &Document{JSONSchemaSemanticVersion: schemaVersion}, nil
	}
	if err != nil {
		return nil, &NotFoundError{Location: location, Err: err}
	}
	doc, err := ParseManifest(data)
	if err != nil {
		return nil, &FormatError{Location: location, Reason: "cannot merge into existing manifest", Err: err}
	}
	if doc.JSONSchemaSemanticVersion == "" {
		doc.JSONSchemaSemanticVersion = schemaVersion
	}
	return doc, nil
}

func (w *Writer) writeEntity(ctx context.Context, folder string, e model.EntityDescriptor) error {
	location := w.Layout.EntityLocation(folder, e.Name)
	data, err := marshal(EntityDocument{
		JSONSchemaSemanticVersion: schemaVersion,
		Definitions: []EntityDefinition{{
			EntityName:    e.Name,
			HasAttributes: e.Attributes,
		}},
	})
	if err != nil {
		return fmt.Errorf("serializing entity %s: %w", e.Name, err)
	}
	if err := w.Store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("writing entity %s: %w", location, err)
	}
	return nil
}

// WriteModelJSON writes m as model.json inside folder.
func (w *Writer) WriteModelJSON(ctx context.Context, folder string, m ModelJSON) error {
	location := w.Layout.ModelJSONLocation(folder)
	data, err := marshal(m)
	if err != nil {
		return fmt.Errorf("serializing model.json: %w", err)
	}
	if err := w.Store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("writing %s: %w", location, err)
	}
	log.Ctx(ctx).Info().Str("path", location).Int("entities", len(m.Entities)).Msg("model.json written")
	return nil
}

// mergeEntity replaces the declaration with the same name or appends it.
func mergeEntity(doc *Document, decl EntityDeclaration) {
	for i, e := range doc.Entities {
		if e.EntityName == decl.EntityName {
			doc.Entities[i] = decl
			return
		}
	}
	doc.Entities = append(doc.Entities, decl)
}

// mergeSubManifest appends ref unless a sub-manifest with that name exists.
func mergeSubManifest(doc *Document, ref SubManifestRef) {
	for _, s := range doc.SubManifests {
		if s.ManifestName == ref.ManifestName {
			return
		}
	}
	doc.SubManifests = append(doc.SubManifests, ref)
}
