package constraint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"mediagen/internal/domain"
)

// DurationTable maps a resolution to the clip durations (seconds) a provider
// accepts at that resolution. A nil slice means duration does not apply.
type DurationTable map[string][]int

// KindRules is the compatibility data for one job kind.
type KindRules struct {
	Durations          DurationTable
	DefaultResolution  string
	AspectRatios       []string
	DefaultAspectRatio string
}

// Rules holds the compatibility data for every kind.
type Rules map[domain.JobKind]KindRules

const videoKind = domain.JobKindVideo

// DefaultVideoDurations reflects Veo: 1080p renders only 8 second clips.
func DefaultVideoDurations() DurationTable {
	return DurationTable{
		"720p":  {4, 6, 8},
		"1080p": {8},
	}
}

// DefaultRules returns the built-in compatibility rules.
func DefaultRules() Rules {
	return Rules{
		domain.JobKindVideo: {
			Durations:          DefaultVideoDurations(),
			DefaultResolution:  "720p",
			AspectRatios:       []string{"16:9", "9:16"},
			DefaultAspectRatio: "16:9",
		},
		domain.JobKindImage: {
			Durations:          DurationTable{"1K": nil, "2K": nil},
			DefaultResolution:  "1K",
			AspectRatios:       []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "4:5", "5:4", "21:9"},
			DefaultAspectRatio: "1:1",
		},
	}
}

// Validator normalizes raw parameters against Rules. It performs no I/O and the
// same input always yields the same output.
type Validator struct {
	rules          Rules
	defaultPurpose domain.Purpose
	defaultTier    domain.QualityTier
	fold           cases.Caser
}

// NewValidator builds a validator. A nil rules map uses DefaultRules.
func NewValidator(rules Rules) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{
		rules:          rules,
		defaultPurpose: domain.PurposePhotorealistic,
		defaultTier:    domain.QualityStandard,
		fold:           cases.Fold(),
	}
}

// Rules exposes the active compatibility data.
func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate returns normalized parameters or a *domain.ValidationError.
func (v *Validator) Validate(kind domain.JobKind, raw domain.RawParams) (domain.Params, error) {
	kr, ok := v.rules[kind]
	if !ok {
		return domain.Params{}, &domain.ValidationError{Field: "kind", Value: string(kind), Reason: "unsupported kind"}
	}

	prompt := normalizePrompt(raw.Prompt)
	if prompt == "" {
		return domain.Params{}, &domain.ValidationError{Field: "prompt", Reason: "prompt is required"}
	}

	out := domain.Params{
		Prompt:        prompt,
		NeedsEditing:  raw.NeedsEditing,
		SpeedPriority: raw.SpeedPriority,
	}

	resolution, ok := v.matchKey(raw.Resolution, kr.Durations, kr.DefaultResolution)
	if !ok {
		return domain.Params{}, &domain.ValidationError{Field: "resolution", Value: raw.Resolution, Reason: "unsupported resolution"}
	}
	out.Resolution = resolution

	duration, coercion := resolveDuration(resolution, raw.Duration, kr.Durations[resolution])
	out.Duration = duration
	if coercion != nil {
		out.Coercions = append(out.Coercions, *coercion)
	}

	aspect, ok := v.matchOne(raw.AspectRatio, kr.AspectRatios, kr.DefaultAspectRatio)
	if !ok {
		return domain.Params{}, &domain.ValidationError{Field: "aspect_ratio", Value: raw.AspectRatio, Reason: "unsupported aspect ratio"}
	}
	out.AspectRatio = aspect

	purpose, ok := v.matchOne(raw.Purpose, purposeNames(), string(v.defaultPurpose))
	if !ok {
		return domain.Params{}, &domain.ValidationError{Field: "purpose", Value: raw.Purpose, Reason: "unsupported purpose"}
	}
	out.Purpose = domain.Purpose(purpose)

	tier, ok := v.matchOne(raw.QualityTier, tierNames(), string(v.defaultTier))
	if !ok {
		return domain.Params{}, &domain.ValidationError{Field: "quality_tier", Value: raw.QualityTier, Reason: "unsupported quality tier"}
	}
	out.QualityTier = domain.QualityTier(tier)

	return out, nil
}

// resolveDuration picks the legal duration for resolution. A request of zero
// means "unspecified" and takes the longest legal clip without recording a
// coercion.
func resolveDuration(resolution string, requested int, allowed []int) (int, *domain.Coercion) {
	if len(allowed) == 0 {
		if requested != 0 {
			return 0, &domain.Coercion{
				Field:  "duration",
				From:   strconv.Itoa(requested),
				To:     "0",
				Reason: "duration does not apply at resolution " + resolution,
			}
		}
		return 0, nil
	}
	legal := append([]int(nil), allowed...)
	sort.Ints(legal)
	if requested == 0 {
		return legal[len(legal)-1], nil
	}
	for _, d := range legal {
		if d == requested {
			return requested, nil
		}
	}
	best := nearest(legal, requested)
	return best, &domain.Coercion{
		Field:  "duration",
		From:   strconv.Itoa(requested),
		To:     strconv.Itoa(best),
		Reason: fmt.Sprintf("%s allows %s seconds", resolution, joinInts(legal)),
	}
}

// nearest returns the element of sorted closest to v; ties resolve upward.
func nearest(sorted []int, v int) int {
	best := sorted[0]
	bestDist := abs(v - best)
	for _, d := range sorted[1:] {
		if dist := abs(v - d); dist <= bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}

func (v *Validator) matchKey(value string, table DurationTable, fallback string) (string, bool) {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return v.matchOne(value, keys, fallback)
}

func (v *Validator) matchOne(value string, options []string, fallback string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, fallback != ""
	}
	folded := v.fold.String(value)
	for _, opt := range options {
		if v.fold.String(opt) == folded {
			return opt, true
		}
	}
	return "", false
}

func normalizePrompt(p string) string {
	return strings.Join(strings.Fields(norm.NFC.String(p)), " ")
}

func purposeNames() []string {
	out := make([]string, len(domain.Purposes))
	for i, p := range domain.Purposes {
		out[i] = string(p)
	}
	return out
}

func tierNames() []string {
	out := make([]string, len(domain.QualityTiers))
	for i, t := range domain.QualityTiers {
		out[i] = string(t)
	}
	return out
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
