package manifest

import (
	"slices"
	"strings"
	"sync"

	"cdmutil/internal/model"
)

// Link is one parent → child sub-manifest edge.
type Link struct {
	Parent string
	Child  string
}

// Hierarchy is an arena of manifest nodes, one per distinct folder prefix.
// It is safe for concurrent use; segments of one path are still linked in order.
type Hierarchy struct {
	mu    sync.Mutex
	nodes []model.ManifestNode
	index map[string]int
	links []Link
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{index: map[string]int{}}
}

func splitFolder(folder string) []string {
	var segments []string
	for _, s := range strings.Split(strings.ReplaceAll(folder, `\`, "/"), "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// NormalizePath turns "Tables/AR/" into "/Tables/AR".
func NormalizePath(folder string) string {
	segments := splitFolder(folder)
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

// BuildHierarchy creates one node per folder prefix of every entity's folder
// (rootPath when the entity has none) and attaches each entity to its leaf.
// The leaf of rootPath is named after list.ManifestName when given.
func BuildHierarchy(list model.EntityList, rootPath string) *Hierarchy {
	h := NewHierarchy()
	root := h.AddPath(rootPath)

	for _, e := range list.Entities {
		leaf := root
		if strings.TrimSpace(e.Folder) != "" {
			leaf = h.AddPath(e.Folder)
		}
		if leaf < 0 {
			continue
		}
		h.attach(leaf, e)
	}

	if root >= 0 && strings.TrimSpace(list.ManifestName) != "" {
		h.mu.Lock()
		h.nodes[root].ManifestName = list.ManifestName
		h.mu.Unlock()
	}
	return h
}

// AddPath walks the folder segments left to right, linking segment i to
// segment i+1 under the accumulated prefix, and returns the leaf index (-1 for an empty path).
func (h *Hierarchy) AddPath(folder string) int {
	segments := splitFolder(folder)
	if len(segments) == 0 {
		return -1
	}

	path := ""
	for i := 0; i < len(segments)-1; i++ {
		path = path + "/" + segments[i]
		h.CreateSubManifest(path, segments[i+1])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(segments) == 1 {
		return h.ensure("/"+segments[0], -1)
	}
	return h.index[path+"/"+segments[len(segments)-1]]
}

// CreateSubManifest links childName under the node at parentPath, creating
// either node when missing. Linking an existing pair is a no-op.
// A childName with several segments is linked one segment at a time, and an
// empty parentPath makes the child a root. Nothing is created when both are
// empty; the returned node then has Parent -1 and no name.
func (h *Hierarchy) CreateSubManifest(parentPath, childName string) model.ManifestNode {
	parentPath = NormalizePath(parentPath)
	segments := splitFolder(childName)

	if parentPath == "" || len(segments) != 1 {
		i := h.AddPath(parentPath + "/" + strings.Join(segments, "/"))
		if i < 0 {
			return model.ManifestNode{Parent: -1}
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		return cloneNode(h.nodes[i])
	}
	childName = segments[0]

	h.mu.Lock()
	defer h.mu.Unlock()

	parent := h.ensure(parentPath, -1)
	child := h.ensure(parentPath+"/"+childName, parent)

	if !slices.Contains(h.nodes[parent].Children, child) {
		h.nodes[parent].Children = append(h.nodes[parent].Children, child)
		h.links = append(h.links, Link{Parent: h.nodes[parent].Name, Child: childName})
	}
	return cloneNode(h.nodes[child])
}

// ensure returns the node at path, creating it under parent if needed. Caller holds mu.
func (h *Hierarchy) ensure(path string, parent int) int {
	if i, ok := h.index[path]; ok {
		if h.nodes[i].Parent < 0 && parent >= 0 {
			h.nodes[i].Parent = parent
		}
		return i
	}
	name := path[strings.LastIndex(path, "/")+1:]
	h.nodes = append(h.nodes, model.ManifestNode{
		Name:         name,
		Path:         path,
		ManifestName: name,
		Parent:       parent,
	})
	i := len(h.nodes) - 1
	h.index[path] = i
	return i
}

func (h *Hierarchy) attach(i int, e model.EntityDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for j, existing := range h.nodes[i].Entities {
		if existing.Name == e.Name {
			h.nodes[i].Entities[j] = e
			return
		}
	}
	h.nodes[i].Entities = append(h.nodes[i].Entities, e)
}

// Nodes returns a copy of the arena in creation order.
func (h *Hierarchy) Nodes() []model.ManifestNode {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.ManifestNode, len(h.nodes))
	for i, n := range h.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Node returns the node at path.
func (h *Hierarchy) Node(path string) (model.ManifestNode, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, ok := h.index[NormalizePath(path)]
	if !ok {
		return model.ManifestNode{}, false
	}
	return cloneNode(h.nodes[i]), true
}

// Links returns every parent → child edge in creation order.
func (h *Hierarchy) Links() []Link {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.links)
}

func cloneNode(n model.ManifestNode) model.ManifestNode {
	n.Children = slices.Clone(n.Children)
	n.Entities = slices.Clone(n.Entities)
	return n
}
