package lake

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const (
	ManifestSuffix  = ".manifest.cdm.json"
	EntitySuffix    = ".cdm.json"
	ModelJSONName   = "model.json"
	dfsHostTemplate = "%s.dfs.core.windows.net"
)

// Layout knows where manifests live, either in an ADLS Gen2 file system
// (StorageAccount set) or in a local directory (StorageAccount empty).
type Layout struct {
	StorageAccount string // ex: "contosolake"; empty means local disk
	FileSystem     string // ADLS file system, or local base directory
	MSIAuth        bool
}

func NewLayout(storageAccount, fileSystem string, msiAuth bool) Layout {
	l := Layout{
		StorageAccount: strings.TrimSpace(storageAccount),
		FileSystem:     strings.TrimSpace(fileSystem),
		MSIAuth:        msiAuth,
	}
	if l.Local() {
		// keep absolute local directories absolute
		if trimmed := strings.TrimRight(l.FileSystem, `/\`); trimmed != "" {
			l.FileSystem = trimmed
		}
	} else {
		l.FileSystem = strings.Trim(l.FileSystem, "/")
	}
	return l
}

// Local reports whether the layout addresses the local filesystem.
func (l Layout) Local() bool {
	return l.StorageAccount == ""
}

// Root:
//
//   - ADLS:  https://<account>.dfs.core.windows.net/<filesystem>
//   - local: <filesystem>
func (l Layout) Root() string {
	if l.Local() {
		if l.FileSystem == "" {
			return "."
		}
		return filepath.FromSlash(l.FileSystem)
	}
	u := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf(dfsHostTemplate, l.StorageAccount),
		Path:   "/" + l.FileSystem,
	}
	return u.String()
}

// FolderLocation returns the location of a slash-delimited folder under the root.
func (l Layout) FolderLocation(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return l.Root()
	}
	if l.Local() {
		return filepath.Join(l.Root(), filepath.FromSlash(folder))
	}
	return l.Root() + "/" + folder
}

func (l Layout) ManifestLocation(folder, manifestName string) string {
	return joinLocation(l.FolderLocation(folder), manifestName+ManifestSuffix)
}

func (l Layout) EntityLocation(folder, entityName string) string {
	return joinLocation(l.FolderLocation(folder), entityName+EntitySuffix)
}

func (l Layout) ModelJSONLocation(folder string) string {
	return joinLocation(l.FolderLocation(folder), ModelJSONName)
}

func joinLocation(base, name string) string {
	if IsURL(base) {
		return strings.TrimSuffix(base, "/") + "/" + name
	}
	return filepath.Join(base, name)
}

// IsURL reports whether location is an http(s) or file URL rather than a plain path.
func IsURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file":
		return true
	}
	return false
}

// Resolve resolves ref relative to the document at base, the way CDM
// corpus paths are relative to the manifest that declares them.
func Resolve(base, ref string) (string, error) {
	if IsURL(ref) || filepath.IsAbs(ref) {
		return ref, nil
	}
	if IsURL(base) {
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		r, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		return b.ResolveReference(r).String(), nil
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref)), nil
}

// ContainerRoot returns scheme://host/<first path segment> of a storage URL,
// which is what an external data source points to. Plain paths return "".
func ContainerRoot(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	root := url.URL{Scheme: u.Scheme, Host: u.Host}
	if len(segments) > 0 && segments[0] != "" {
		root.Path = "/" + segments[0]
	}
	return root.String()
}

// Dir returns the folder that contains location.
func Dir(location string) string {
	if IsURL(location) {
		u, err := url.Parse(location)
		if err == nil {
			u.Path = path.Dir(u.Path)
			return u.String()
		}
	}
	return filepath.Dir(location)
}
