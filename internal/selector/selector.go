package selector

import (
	"fmt"

	"mediagen/internal/domain"
)

// Family groups model variants by quality tier.
type Family struct {
	Name   string
	Models map[domain.QualityTier]string
}

func (f Family) model(tier domain.QualityTier) (string, domain.QualityTier) {
	if m, ok := f.Models[tier]; ok {
		return m, tier
	}
	if m, ok := f.Models[domain.QualityStandard]; ok {
		return m, domain.QualityStandard
	}
	for _, t := range domain.QualityTiers {
		if m, ok := f.Models[t]; ok {
			return m, t
		}
	}
	return "", tier
}

// KindCatalog is the model data for one job kind.
type KindCatalog struct {
	Families     map[string]Family
	Purposes     map[domain.Purpose]string
	EditingModel string
	FastestModel string
	DefaultModel string
}

// Catalog is the selection input for every kind served by one provider.
type Catalog struct {
	Provider string
	Kinds    map[domain.JobKind]KindCatalog
}

// DefaultCatalog returns the Gemini model line-up.
func DefaultCatalog() Catalog {
	imagen := Family{Name: "imagen", Models: map[domain.QualityTier]string{
		domain.QualityUltra:    "imagen-4.0-ultra-generate-001",
		domain.QualityStandard: "imagen-4.0-generate-001",
		domain.QualityFast:     "imagen-4.0-fast-generate-001",
	}}
	native := Family{Name: "gemini-native", Models: map[domain.QualityTier]string{
		domain.QualityUltra:    "gemini-3-pro-image-preview",
		domain.QualityStandard: "gemini-2.5-flash-image",
		domain.QualityFast:     "gemini-2.5-flash-image",
	}}
	veo := Family{Name: "veo", Models: map[domain.QualityTier]string{
		domain.QualityUltra:    "veo-3.1-generate-preview",
		domain.QualityStandard: "veo-3.1-generate-preview",
		domain.QualityFast:     "veo-3.1-fast-generate-preview",
	}}
	return Catalog{
		Provider: "gemini",
		Kinds: map[domain.JobKind]KindCatalog{
			domain.JobKindImage: {
				Families: map[string]Family{imagen.Name: imagen, native.Name: native},
				Purposes: map[domain.Purpose]string{
					domain.PurposePhotorealistic:  imagen.Name,
					domain.PurposeLogoMockup:      imagen.Name,
					domain.PurposeQuickPreview:    imagen.Name,
					domain.PurposeComposite:       native.Name,
					domain.PurposeAbstractConcept: native.Name,
					domain.PurposeTextHeavy:       native.Name,
				},
				EditingModel: "gemini-2.5-flash-image",
				FastestModel: "imagen-4.0-fast-generate-001",
				DefaultModel: "imagen-4.0-generate-001",
			},
			domain.JobKindVideo: {
				Families: map[string]Family{veo.Name: veo},
				Purposes: map[domain.Purpose]string{
					domain.PurposeCinematic:      veo.Name,
					domain.PurposeProductDemo:    veo.Name,
					domain.PurposePhotorealistic: veo.Name,
				},
				EditingModel: "veo-2.0-generate-001",
				FastestModel: "veo-3.1-fast-generate-preview",
				DefaultModel: "veo-3.1-generate-preview",
			},
		},
	}
}

// Selector picks a model from a Catalog.
type Selector struct {
	catalog Catalog
}

// New builds a selector over catalog.
func New(catalog Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select applies the policy in order: editing, speed, purpose family and tier,
// then the default model. It never fails; unknown input lands on the default.
func (s *Selector) Select(kind domain.JobKind, purpose domain.Purpose, tier domain.QualityTier, needsEditing, speedPriority bool) domain.ModelChoice {
	kc := s.catalog.Kinds[kind]
	choice := domain.ModelChoice{Provider: s.catalog.Provider, Tier: tier}

	switch {
	case needsEditing && kc.EditingModel != "":
		choice.Model = kc.EditingModel
		choice.Reason = "editing requested"
	case speedPriority && kc.FastestModel != "":
		choice.Model = kc.FastestModel
		choice.Tier = domain.QualityFast
		choice.Reason = "speed priority"
	default:
		if name, ok := kc.Purposes[purpose]; ok {
			if fam, ok := kc.Families[name]; ok {
				if model, resolved := fam.model(tier); model != "" {
					choice.Model = model
					choice.Family = fam.Name
					choice.Tier = resolved
					choice.Reason = fmt.Sprintf("purpose %s -> %s/%s", purpose, fam.Name, resolved)
					return choice
				}
			}
		}
		choice.Model = kc.DefaultModel
		choice.Tier = domain.QualityStandard
		choice.Reason = "default model"
	}
	if choice.Family == "" {
		choice.Family = s.familyOf(kc, choice.Model)
	}
	return choice
}

func (s *Selector) familyOf(kc KindCatalog, model string) string {
	for name, fam := range kc.Families {
		for _, m := range fam.Models {
			if m == model {
				return name
			}
		}
	}
	return ""
}
