package selector

import (
	"testing"

	"mediagen/internal/domain"
)

func TestSelect(t *testing.T) {
	s := New(DefaultCatalog())
	tests := []struct {
		name    string
		kind    domain.JobKind
		purpose domain.Purpose
		tier    domain.QualityTier
		edit    bool
		speed   bool
		want    string
		family  string
	}{
		{name: "editing wins", kind: domain.JobKindImage, purpose: domain.PurposePhotorealistic, tier: domain.QualityUltra, edit: true, speed: true, want: "gemini-2.5-flash-image", family: "gemini-native"},
		{name: "speed", kind: domain.JobKindImage, purpose: domain.PurposeComposite, tier: domain.QualityUltra, speed: true, want: "imagen-4.0-fast-generate-001", family: "imagen"},
		{name: "imagen ultra", kind: domain.JobKindImage, purpose: domain.PurposePhotorealistic, tier: domain.QualityUltra, want: "imagen-4.0-ultra-generate-001", family: "imagen"},
		{name: "native text", kind: domain.JobKindImage, purpose: domain.PurposeTextHeavy, tier: domain.QualityStandard, want: "gemini-2.5-flash-image", family: "gemini-native"},
		{name: "unmapped purpose", kind: domain.JobKindImage, purpose: domain.PurposeSatiricalEdit, tier: domain.QualityUltra, want: "imagen-4.0-generate-001", family: "imagen"},
		{name: "video fast tier", kind: domain.JobKindVideo, purpose: domain.PurposeCinematic, tier: domain.QualityFast, want: "veo-3.1-fast-generate-preview", family: "veo"},
		{name: "video editing", kind: domain.JobKindVideo, purpose: domain.PurposeCinematic, edit: true, want: "veo-2.0-generate-001"},
		{name: "video unmapped", kind: domain.JobKindVideo, purpose: domain.PurposeLogoMockup, tier: domain.QualityStandard, want: "veo-3.1-generate-preview", family: "veo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Select(tt.kind, tt.purpose, tt.tier, tt.edit, tt.speed)
			if got.Model != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, got.Model, got.Reason)
			}
			if got.Family != tt.family {
				t.Fatalf("expected family %q, got %q", tt.family, got.Family)
			}
			if got.Provider != "gemini" {
				t.Fatalf("expected provider gemini, got %s", got.Provider)
			}
		})
	}
}

func TestSelectMissingTierFallsBackToStandard(t *testing.T) {
	cat := DefaultCatalog()
	img := cat.Kinds[domain.JobKindImage]
	img.Families["imagen"] = Family{Name: "imagen", Models: map[domain.QualityTier]string{
		domain.QualityStandard: "imagen-std",
	}}
	s := New(cat)
	got := s.Select(domain.JobKindImage, domain.PurposePhotorealistic, domain.QualityUltra, false, false)
	if got.Model != "imagen-std" || got.Tier != domain.QualityStandard {
		t.Fatalf("unexpected choice %+v", got)
	}
}
