package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"mediagen/internal/domain"
)

const inlinePrefix = "inline/"

var _ domain.Provider = (*Client)(nil)

func newHandleID() string { return uuid.NewString() }

// Name identifies the provider in job records and metrics.
func (c *Client) Name() string { return providerName }

// Primary submits through the model family's native endpoint.
func (c *Client) Primary() domain.Submitter {
	return domain.SubmitterFunc(func(ctx context.Context, req domain.SubmitRequest) (domain.OperationHandle, error) {
		switch req.Kind {
		case domain.JobKindVideo:
			return c.submitVideoOperation(ctx, req.Model, req)
		case domain.JobKindImage:
			if isImagen(req.Model) {
				return c.submitImagen(ctx, req.Model, req)
			}
			return c.submitGenerateContent(ctx, req.Model, req)
		default:
			return domain.OperationHandle{}, unsupportedError("submit", fmt.Errorf("kind %q", req.Kind))
		}
	})
}

// Secondary submits through an alternate surface: a long running operation on
// another Veo model for video, the other model family for images.
func (c *Client) Secondary() domain.Submitter {
	return domain.SubmitterFunc(func(ctx context.Context, req domain.SubmitRequest) (domain.OperationHandle, error) {
		switch req.Kind {
		case domain.JobKindVideo:
			return c.submitVideoOperation(ctx, c.alternateVideoModel(req.Model), req)
		case domain.JobKindImage:
			if isImagen(req.Model) {
				return c.submitGenerateContent(ctx, c.imageModel, req)
			}
			return c.submitImagen(ctx, c.imagenModel, req)
		default:
			return domain.OperationHandle{}, unsupportedError("submit", fmt.Errorf("kind %q", req.Kind))
		}
	})
}

// alternateVideoModel picks the Veo model for the secondary path. It never
// resubmits to the model the primary path just used.
func (c *Client) alternateVideoModel(primary string) string {
	if strings.EqualFold(primary, c.videoModel) {
		return fallbackVideoModel
	}
	return c.videoModel
}

func isImagen(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "imagen")
}

func (c *Client) submitVideoOperation(ctx context.Context, model string, req domain.SubmitRequest) (domain.OperationHandle, error) {
	payload := videoPredictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: videoParameters{
			AspectRatio:     req.AspectRatio,
			DurationSeconds: req.Duration,
			Resolution:      req.Resolution,
		},
	}
	var op operation
	path := "models/" + url.PathEscape(model) + ":predictLongRunning"
	if err := c.invokeGemini(ctx, "submit", http.MethodPost, path, payload, &op); err != nil {
		return domain.OperationHandle{}, err
	}
	if strings.TrimSpace(op.Name) == "" {
		return domain.OperationHandle{}, transportError("submit", errors.New("operation name missing from response"))
	}
	c.logger.Info().Str("job_id", req.JobID).Str("model", model).Str("operation", op.Name).Msg("genai: video operation started")
	return domain.NewOperationHandle(op.Name), nil
}

func (c *Client) submitImagen(ctx context.Context, model string, req domain.SubmitRequest) (domain.OperationHandle, error) {
	payload := imagePredictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: imageParameters{
			SampleCount:     1,
			AspectRatio:     req.AspectRatio,
			SampleImageSize: req.Resolution,
		},
	}
	var resp imagePredictResponse
	path := "models/" + url.PathEscape(model) + ":predict"
	if err := c.invokeGemini(ctx, "submit", http.MethodPost, path, payload, &resp); err != nil {
		return domain.OperationHandle{}, err
	}
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
		if err != nil {
			return domain.OperationHandle{}, transportError("submit", fmt.Errorf("decode prediction: %w", err))
		}
		return c.putInline(domain.ResultRef{ContentType: firstNonEmpty(p.MimeType, "image/png"), Inline: data}), nil
	}
	reason := "no image returned"
	for _, p := range resp.Predictions {
		if p.RAIFilteredReason != "" {
			reason = p.RAIFilteredReason
		}
	}
	return domain.OperationHandle{}, permanentError("submit", errors.New(reason))
}

func (c *Client) submitGenerateContent(ctx context.Context, model string, req domain.SubmitRequest) (domain.OperationHandle, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildPrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp geminiGenerateContentResponse
	path := "models/" + url.PathEscape(model) + ":generateContent"
	if err := c.invokeGemini(ctx, "submit", http.MethodPost, path, payload, &resp); err != nil {
		return domain.OperationHandle{}, err
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			ref, ok, err := c.decodeInlineAsset(ctx, part)
			if err != nil {
				return domain.OperationHandle{}, err
			}
			if ok {
				return c.putInline(ref), nil
			}
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return domain.OperationHandle{}, permanentError("submit", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	return domain.OperationHandle{}, transportError("submit", errors.New("no media in generateContent response"))
}

// Poll reports the state of a long running operation. Synchronous results are
// served from the inline cache.
func (c *Client) Poll(ctx context.Context, handle domain.OperationHandle) (domain.PollResult, error) {
	name := handle.Name()
	if strings.HasPrefix(name, inlinePrefix) {
		ref, ok := c.getInline(name)
		if !ok {
			return domain.PollResult{}, permanentError("poll", domain.ErrOperationNotFound)
		}
		return domain.Done(ref), nil
	}

	var op operation
	if err := c.invokeGemini(ctx, "poll", http.MethodGet, name, nil, &op); err != nil {
		var pe *domain.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return domain.PollResult{}, permanentError("poll", fmt.Errorf("%s: %w", name, domain.ErrOperationNotFound))
		}
		return domain.PollResult{}, err
	}
	return operationResult(op), nil
}

func operationResult(op operation) domain.PollResult {
	if !op.Done {
		hint := -1
		if op.Metadata != nil && op.Metadata.ProgressPercent != nil {
			hint = *op.Metadata.ProgressPercent
		}
		return domain.Pending(hint)
	}
	// A finished operation never changes, so its error is final whatever the code.
	if op.Error != nil {
		return domain.Failed(true, fmt.Sprintf("operation error %d: %s", op.Error.Code, op.Error.Message))
	}
	if op.Response != nil {
		video := op.Response.GenerateVideoResponse
		for _, s := range video.GeneratedSamples {
			if s.Video.URI != "" {
				return domain.Done(domain.ResultRef{URI: s.Video.URI, ContentType: firstNonEmpty(s.Video.MimeType, "video/mp4")})
			}
		}
		if len(video.RAIMediaFilteredReasons) > 0 {
			return domain.Failed(true, strings.Join(video.RAIMediaFilteredReasons, "; "))
		}
	}
	return domain.Failed(true, "operation finished without a video")
}

// Download fetches a finished artifact. Inline references are returned as is.
func (c *Client) Download(ctx context.Context, ref domain.ResultRef) ([]byte, string, error) {
	if len(ref.Inline) > 0 {
		return ref.Inline, ref.ContentType, nil
	}
	if ref.URI == "" {
		return nil, "", permanentError("download", errors.New("result has no uri"))
	}
	data, contentType, err := c.downloadFile(ctx, ref.URI)
	if err != nil {
		return nil, "", err
	}
	return data, firstNonEmpty(ref.ContentType, contentType), nil
}

func buildPrompt(req domain.SubmitRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		b.WriteString("\nAspect ratio: ")
		b.WriteString(aspect)
	}
	if req.Kind == domain.JobKindVideo && req.Duration > 0 {
		fmt.Fprintf(&b, "\nDuration: %d seconds", req.Duration)
	}
	if res := strings.TrimSpace(req.Resolution); res != "" {
		b.WriteString("\nResolution: ")
		b.WriteString(res)
	}
	return b.String()
}
