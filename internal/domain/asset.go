package domain

import "time"

// ArtifactTag distinguishes provider produced artifacts from local placeholders.
type ArtifactTag string

const (
	ArtifactGenerated ArtifactTag = "generated"
	ArtifactFallback  ArtifactTag = "fallback"
)

// Artifact is a stored media object.
type Artifact struct {
	Key         string
	Kind        JobKind
	Tag         ArtifactTag
	ContentType string
	Data        []byte
	Bytes       int64
	ModifiedAt  time.Time
}
