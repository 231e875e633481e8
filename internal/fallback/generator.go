// Package fallback renders deterministic placeholder artifacts for jobs the
// provider could not complete.
package fallback

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/storage"
)

const (
	imageLongSide = 1024
	videoLongSide = 320
	// FramesPerSecond is the frame rate of animated placeholders.
	FramesPerSecond = 4
	frameDelay      = 100 / FramesPerSecond
)

// Generator renders placeholders and writes them through a storage.Store.
type Generator struct {
	store storage.Store
	log   zerolog.Logger
}

// New builds a generator backed by store.
func New(store storage.Store, logger zerolog.Logger) *Generator {
	return &Generator{store: store, log: logger}
}

// Generate renders the placeholder for params and stores it under the fallback
// tag. Identical params always produce identical bytes.
func (g *Generator) Generate(ctx context.Context, kind domain.JobKind, params domain.Params) (string, error) {
	data, contentType, seed, err := Render(kind, params)
	if err != nil {
		return "", err
	}
	uri, err := g.store.Write(ctx, domain.Artifact{
		Kind:        kind,
		Tag:         domain.ArtifactFallback,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return "", fmt.Errorf("fallback: store artifact: %w", err)
	}
	g.log.Info().Str("kind", string(kind)).Str("seed", seed).Str("uri", uri).Int("bytes", len(data)).Msg("fallback: placeholder stored")
	return uri, nil
}

// Seed hashes the normalized params into the value every rendering decision is
// derived from.
func Seed(kind domain.JobKind, params domain.Params) string {
	hasher := sha256.New()
	for _, part := range []any{kind, params.Prompt, params.Resolution, params.Duration, params.AspectRatio, params.Purpose, params.QualityTier} {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:seedLen]
}

// Render produces the placeholder bytes without storing them.
func Render(kind domain.JobKind, params domain.Params) ([]byte, string, string, error) {
	seed := Seed(kind, params)
	switch kind {
	case domain.JobKindVideo:
		data, err := renderAnimation(seed, params)
		return data, "image/gif", seed, err
	default:
		data, err := renderStill(seed, params)
		return data, "image/png", seed, err
	}
}

func renderStill(seed string, params domain.Params) ([]byte, error) {
	width, height := dimensions(params.AspectRatio, imageLongSide)
	img := imaging.AdjustContrast(renderFrame(width, height, seed, 0), 8)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("fallback: encode png: %w", err)
	}
	return embedPNGSeed(buf.Bytes(), seed)
}

func renderAnimation(seed string, params domain.Params) ([]byte, error) {
	width, height := dimensions(params.AspectRatio, videoLongSide)
	duration := params.Duration
	if duration <= 0 {
		duration = 1
	}
	frames := duration * FramesPerSecond
	step := max(2, height/(12*FramesPerSecond))

	anim := &gif.GIF{LoopCount: 0}
	for i := 0; i < frames; i++ {
		src := renderFrame(width, height, seed, i*step)
		paletted := image.NewPaletted(src.Bounds(), palette.Plan9)
		draw.Draw(paletted, paletted.Bounds(), src, image.Point{}, draw.Src)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, frameDelay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("fallback: encode gif: %w", err)
	}
	return embedGIFSeed(buf.Bytes(), seed)
}
