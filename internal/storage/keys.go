package storage

import (
	"strings"

	"studio-store/pkg/validator"
)

const (
	PrefixUser    = "user:"
	PrefixSession = "session:"
	PrefixProject = "project:"
	PrefixMeta    = "meta:"

	ImagesRoot = "images/"
	TempRoot   = "temp/"

	// TempProject is the project id used for images staged before their project
	// exists. Project ids never take this value.
	TempProject = validator.ReservedStagingID
)

func UserKey(id string) string    { return PrefixUser + id }
func SessionKey(id string) string { return PrefixSession + id }
func ProjectKey(id string) string { return PrefixProject + id }
func MetaKey(id string) string    { return PrefixMeta + id }

// ImagePrefix is the blob prefix holding every image of a project.
func ImagePrefix(projectID string) string {
	if projectID == "" || projectID == TempProject {
		return TempRoot
	}
	return ImagesRoot + projectID + "/"
}

// ImagePath is the blob path of filename inside a project's image prefix.
func ImagePath(projectID, filename string) string {
	return ImagePrefix(projectID) + filename
}

// IDFromKey strips a KV prefix from key.
func IDFromKey(prefix, key string) string {
	return strings.TrimPrefix(key, prefix)
}

// Filename returns the last path segment of a blob path.
func Filename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
