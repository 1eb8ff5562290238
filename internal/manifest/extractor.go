package manifest

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"cdmutil/internal/lake"
	"cdmutil/internal/model"
)

const defaultConcurrency = 8

// Extractor walks a manifest tree and emits one SQLMetadata record per entity.
type Extractor struct {
	Store       Store
	Concurrency int // concurrent sibling fetches per manifest; <= 0 uses a default
}

func NewExtractor(store Store) *Extractor {
	return &Extractor{Store: store, Concurrency: defaultConcurrency}
}

// Extract reads cfg.ManifestURL and every sub-manifest and entity definition
// reachable from it. Records come out depth-first: a manifest's entities in
// declaration order, then each sub-manifest in declaration order. Sibling
// documents are fetched concurrently, but the order never depends on timing.
func (e *Extractor) Extract(ctx context.Context, cfg model.AppConfiguration) ([]model.SQLMetadata, error) {
	out, err := e.walk(ctx, cfg.ManifestURL, nil, cfg)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Str("manifest", cfg.ManifestURL).Int("tables", len(out)).Msg("metadata extracted")
	return out, nil
}

// ReadManifest fetches and parses a single manifest document.
func (e *Extractor) ReadManifest(ctx context.Context, location string) (*Document, error) {
	data, err := e.Store.Read(ctx, location)
	if err != nil {
		return nil, &NotFoundError{Location: location, Err: err}
	}
	doc, err := ParseManifest(data)
	if err != nil {
		return nil, &FormatError{Location: location, Reason: "cannot parse manifest", Err: err}
	}
	return doc, nil
}

// walk visits one manifest. ancestors is the chain from the root to the
// parent of location; each branch owns its copy, so siblings never share it.
func (e *Extractor) walk(ctx context.Context, location string, ancestors []string, cfg model.AppConfiguration) ([]model.SQLMetadata, error) {
	key := normalizeLocation(location)
	if slices.Contains(ancestors, key) {
		return nil, &FormatError{Location: location, Reason: "manifest references itself or an ancestor"}
	}

	doc, err := e.ReadManifest(ctx, location)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Str("manifest", location).Int("entities", len(doc.Entities)).Int("subManifests", len(doc.SubManifests)).Msg("manifest read")

	chain := append(slices.Clone(ancestors), key)
	entities := make([]model.SQLMetadata, len(doc.Entities))
	children := make([][]model.SQLMetadata, len(doc.SubManifests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())

	for i, decl := range doc.Entities {
		g.Go(func() error {
			md, err := e.entity(gctx, location, decl, cfg)
			if err != nil {
				return err
			}
			entities[i] = md
			return nil
		})
	}
	for i, sub := range doc.SubManifests {
		g.Go(func() error {
			ref, err := lake.Resolve(location, sub.Definition)
			if err != nil {
				return &FormatError{Location: location, Reason: "bad sub-manifest reference " + sub.Definition, Err: err}
			}
			md, err := e.walk(gctx, ref, chain, cfg)
			if err != nil {
				return err
			}
			children[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := entities
	for _, c := range children {
		out = append(out, c...)
	}
	return out, nil
}

func (e *Extractor) entity(ctx context.Context, manifestLocation string, decl EntityDeclaration, cfg model.AppConfiguration) (model.SQLMetadata, error) {
	entityPath := decl.EntityPath
	if entityPath == "" {
		entityPath = decl.EntityName + lake.EntitySuffix
	}
	docPath, defName := splitEntityPath(entityPath, decl.EntityName)

	location, err := lake.Resolve(manifestLocation, docPath)
	if err != nil {
		return model.SQLMetadata{}, &FormatError{Location: manifestLocation, Reason: "bad entity path " + entityPath, Err: err}
	}
	data, err := e.Store.Read(ctx, location)
	if err != nil {
		return model.SQLMetadata{}, &NotFoundError{Location: location, Err: err}
	}
	doc, err := ParseEntityDocument(data)
	if err != nil {
		return model.SQLMetadata{}, &FormatError{Location: location, Reason: "cannot parse entity definition", Err: err}
	}
	def, ok := doc.Definition(defName)
	if !ok {
		return model.SQLMetadata{}, &NotFoundError{Location: location + "/" + defName, Err: errNoDefinition}
	}
	if len(def.HasAttributes) == 0 {
		return model.SQLMetadata{}, &FormatError{Location: location, Reason: "entity " + defName + " has no attributes"}
	}

	dataLocation, err := decl.dataLocation(manifestLocation)
	if err != nil {
		return model.SQLMetadata{}, &FormatError{Location: manifestLocation, Reason: "bad data location for " + decl.EntityName, Err: err}
	}

	return model.SQLMetadata{
		TableName:    decl.EntityName,
		TenantID:     cfg.TenantID,
		Schema:       cfg.Options.Schema,
		DataLocation: dataLocation,
		ManifestPath: manifestLocation,
		Attributes:   slices.Clone(def.HasAttributes),
	}, nil
}

func (e *Extractor) limit() int {
	if e.Concurrency <= 0 {
		return defaultConcurrency
	}
	return e.Concurrency
}

// normalizeLocation gives equal keys to equal documents for cycle detection.
func normalizeLocation(location string) string {
	if lake.IsURL(location) {
		if u, err := url.Parse(location); err == nil {
			u.Path = path.Clean(u.Path)
			return u.String()
		}
	}
	if abs, err := filepath.Abs(location); err == nil {
		return abs
	}
	return filepath.Clean(location)
}
