package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/domain"
)

// URIScheme prefixes every artifact reference handed out by a Store.
const URIScheme = "artifact://"

// Store persists generated and fallback artifacts. Artifacts are lifecycled
// independently of jobs.
type Store interface {
	// Write stores a.Data under a fresh key derived from a.Tag and a.Kind and
	// returns its artifact URI.
	Write(ctx context.Context, a domain.Artifact) (string, error)
	// Read loads the artifact behind uri or returns domain.ErrNotFound.
	Read(ctx context.Context, uri string) (domain.Artifact, error)
	// Cleanup removes artifacts older than maxAge and returns how many went.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// NewKey builds "<tag>/<kind>s/<yyyy>/<mm>/<dd>/<uuid><ext>".
func NewKey(tag domain.ArtifactTag, kind domain.JobKind, contentType string, now time.Time) string {
	if tag == "" {
		tag = domain.ArtifactGenerated
	}
	category := "images"
	if kind == domain.JobKindVideo {
		category = "videos"
	}
	ext := ExtensionForMIME(contentType)
	if ext == "" {
		ext = ".bin"
	}
	now = now.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%s%s", tag, category, now.Year(), int(now.Month()), now.Day(), uuid.NewString(), ext)
}

// URI turns a storage key into an artifact URI.
func URI(key string) string {
	return URIScheme + key
}

// KeyFromURI extracts and sanitizes the key of an artifact URI. Bare keys are
// accepted as well.
func KeyFromURI(uri string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(uri), URIScheme)
	return sanitizeKey(key)
}

// TagOf reports the tag segment of a key or URI.
func TagOf(uri string) domain.ArtifactTag {
	key := strings.TrimPrefix(uri, URIScheme)
	head, _, _ := strings.Cut(key, "/")
	return domain.ArtifactTag(head)
}

// PublicURL maps an artifact URI to an HTTP location under baseURL, e.g.
// "/v1/artifacts" or a CDN origin.
func PublicURL(baseURL, uri string) string {
	key, err := KeyFromURI(uri)
	if err != nil || uri == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + key
}

// ExtensionForMIME maps the media types we produce to file extensions.
func ExtensionForMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}

// MIMEForKey is the inverse of ExtensionForMIME.
func MIMEForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// kindForKey recovers the job kind from the category segment.
func kindForKey(key string) domain.JobKind {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) >= 2 && parts[1] == "videos" {
		return domain.JobKindVideo
	}
	return domain.JobKindImage
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
