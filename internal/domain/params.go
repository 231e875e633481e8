package domain

// Purpose guides model selection.
type Purpose string

const (
	PurposePhotorealistic  Purpose = "photorealistic"
	PurposeSatiricalEdit   Purpose = "satirical_edit"
	PurposeComposite       Purpose = "composite"
	PurposeLogoMockup      Purpose = "logo_mockup"
	PurposeAbstractConcept Purpose = "abstract_concept"
	PurposeTextHeavy       Purpose = "text_heavy"
	PurposeQuickPreview    Purpose = "quick_preview"
	PurposeCinematic       Purpose = "cinematic"
	PurposeProductDemo     Purpose = "product_demo"
)

// Purposes lists every accepted purpose.
var Purposes = []Purpose{
	PurposePhotorealistic,
	PurposeSatiricalEdit,
	PurposeComposite,
	PurposeLogoMockup,
	PurposeAbstractConcept,
	PurposeTextHeavy,
	PurposeQuickPreview,
	PurposeCinematic,
	PurposeProductDemo,
}

// QualityTier narrows a model family to a variant.
type QualityTier string

const (
	QualityUltra    QualityTier = "ultra"
	QualityStandard QualityTier = "standard"
	QualityFast     QualityTier = "fast"
)

// QualityTiers lists every accepted tier.
var QualityTiers = []QualityTier{QualityUltra, QualityStandard, QualityFast}

// RawParams is the caller supplied, unvalidated parameter set.
type RawParams struct {
	Prompt        string
	Duration      int
	Resolution    string
	AspectRatio   string
	Purpose       string
	QualityTier   string
	NeedsEditing  bool
	SpeedPriority bool
}

// Coercion records an adjustment made during validation instead of failing.
type Coercion struct {
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Params is the normalized parameter set; it always satisfies the provider
// compatibility rules that were in force when it was produced.
type Params struct {
	Prompt        string
	Duration      int
	Resolution    string
	AspectRatio   string
	Purpose       Purpose
	QualityTier   QualityTier
	NeedsEditing  bool
	SpeedPriority bool
	Coercions     []Coercion
}
