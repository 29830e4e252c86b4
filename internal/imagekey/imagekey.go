// Package imagekey defines the content-addressed filename schema of stored images.
//
// A filename is either untagged, "{hash}.{ext}", or tagged with the project slot it
// belongs to, "{role}_{index}_{hash}.{ext}". The hash is the hex sha256 of the
// image bytes, so identical bytes in the same slot always produce the same name.
package imagekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

type Role string

const (
	RoleNone      Role = ""
	RoleReference Role = "ref"
	RoleGenerated Role = "gen"
)

const (
	// MaxReferenceImages is the number of reference photo slots in a project.
	MaxReferenceImages = 2
	// MaxGeneratedIndex bounds the module index of generated images.
	MaxGeneratedIndex = 999

	hashLength   = sha256.Size * 2
	maxExtLength = 8
	defaultExt   = "bin"

	slotSeparator  = "-"
	fieldSeparator = "_"

	referencePath = "/images/"
	projectParam  = "project"
)

var mimeExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/webp":    "webp",
	"image/gif":     "gif",
	"image/avif":    "avif",
	"image/svg+xml": "svg",
}

var extContentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"avif": "image/avif",
	"svg":  "image/svg+xml",
}

// Slot is the project field an image is restored into on load.
type Slot struct {
	Role  Role
	Index int
}

func (s Slot) Tagged() bool { return s.Role != RoleNone }

func (s Slot) String() string {
	if !s.Tagged() {
		return ""
	}
	return string(s.Role) + slotSeparator + strconv.Itoa(s.Index)
}

// Valid reports whether the slot index is within the range of its role.
func (s Slot) Valid() bool {
	switch s.Role {
	case RoleNone:
		return true
	case RoleReference:
		return s.Index >= 0 && s.Index < MaxReferenceImages
	case RoleGenerated:
		return s.Index >= 0 && s.Index <= MaxGeneratedIndex
	default:
		return false
	}
}

// ParseSlot decodes "ref-0" or "gen-3". Anything else is the untagged slot.
func ParseSlot(s string) Slot {
	role, index, ok := strings.Cut(s, slotSeparator)
	if !ok {
		return Slot{}
	}
	slot, ok := parseRoleIndex(role, index)
	if !ok {
		return Slot{}
	}
	return slot
}

func parseRoleIndex(role, index string) (Slot, bool) {
	r := Role(role)
	if r != RoleReference && r != RoleGenerated {
		return Slot{}, false
	}
	// reject "+1", "01" and friends so every slot has exactly one spelling
	n, err := strconv.Atoi(index)
	if err != nil || strconv.Itoa(n) != index {
		return Slot{}, false
	}
	slot := Slot{Role: r, Index: n}
	if !slot.Valid() {
		return Slot{}, false
	}
	return slot, true
}

// Key is the decoded form of an image filename.
type Key struct {
	Slot
	Hash string
	Ext  string
}

// New derives the key of data stored in slot.
func New(data []byte, contentType string, slot Slot) Key {
	return Key{Slot: slot, Hash: Hash(data), Ext: ExtFromMIME(contentType)}
}

// Hash is the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Filename serializes the key.
func (k Key) Filename() string {
	if !k.Tagged() {
		return k.Hash + "." + k.Ext
	}
	return string(k.Role) + fieldSeparator + strconv.Itoa(k.Index) + fieldSeparator + k.Hash + "." + k.Ext
}

func (k Key) String() string { return k.Filename() }

// ContentType is the MIME type implied by the extension.
func (k Key) ContentType() string {
	return ContentTypeFromExt(k.Ext)
}

// Parse is the inverse of Filename.
func Parse(filename string) (Key, error) {
	stem, ext, ok := cutLast(filename, ".")
	if !ok || !validExt(ext) {
		return Key{}, fmt.Errorf("invalid image filename %q: bad extension", filename)
	}

	parts := strings.Split(stem, fieldSeparator)
	switch len(parts) {
	case 1:
		if !validHash(parts[0]) {
			return Key{}, fmt.Errorf("invalid image filename %q: bad hash", filename)
		}
		return Key{Hash: parts[0], Ext: ext}, nil
	case 3:
		slot, ok := parseRoleIndex(parts[0], parts[1])
		if !ok {
			return Key{}, fmt.Errorf("invalid image filename %q: bad slot", filename)
		}
		if !validHash(parts[2]) {
			return Key{}, fmt.Errorf("invalid image filename %q: bad hash", filename)
		}
		return Key{Slot: slot, Hash: parts[2], Ext: ext}, nil
	default:
		return Key{}, fmt.Errorf("invalid image filename %q", filename)
	}
}

// ExtFromMIME maps a MIME type to the stored file extension. Unknown types map to "bin".
func ExtFromMIME(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return defaultExt
	}
	if ext, ok := mimeExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return defaultExt
}

func ContentTypeFromExt(ext string) string {
	if ct, ok := extContentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Reference builds the public URL of filename. Staged images carry no project query.
func Reference(projectID, filename string) string {
	ref := referencePath + url.PathEscape(filename)
	if projectID == "" || projectID == "temp" {
		return ref
	}
	return ref + "?" + projectParam + "=" + url.QueryEscape(projectID)
}

// ParseReference extracts the project id and filename from a public URL. Absolute
// URLs and the /api/images/ form are accepted. ok is false for anything that is
// not an image reference, including data: URIs.
func ParseReference(ref string) (projectID, filename string, ok bool) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}

	idx := strings.LastIndex(u.Path, referencePath)
	if idx < 0 {
		return "", "", false
	}
	filename = u.Path[idx+len(referencePath):]
	if filename == "" || strings.Contains(filename, "/") {
		return "", "", false
	}

	return u.Query().Get(projectParam), filename, true
}

func validHash(s string) bool {
	if len(s) != hashLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func validExt(s string) bool {
	if s == "" || len(s) > maxExtLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
