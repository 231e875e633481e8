package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

const (
	defaultBaseURL          = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel       = "gemini-2.5-flash-image"
	defaultImagenModel      = "imagen-4.0-generate-001"
	defaultVideoModel       = "veo-3.0-generate-001"
	fallbackVideoModel      = "veo-2.0-generate-001"
	defaultMaxDownloadBytes = 256 << 20
	defaultInlineTTL        = 30 * time.Minute
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey  string
	BaseURL string
	// Credentials resolves the API key per call when APIKey is empty.
	Credentials domain.CredentialSource
	// ImageModel serves generateContent image requests for Imagen jobs.
	ImageModel string
	// ImagenModel serves :predict requests for Gemini native image jobs.
	ImagenModel string
	// VideoModel serves the secondary predictLongRunning path for video jobs.
	VideoModel       string
	MaxDownloadBytes int64
	InlineTTL        time.Duration
	HTTPClient       *http.Client
	Logger           *infra.Logger
	Now              func() time.Time
}

// Client talks to the Generative Language REST API and exposes it as a
// domain.Provider: Veo long running operations for video, Imagen and Gemini
// native generation for images.
type Client struct {
	apiKey      string
	baseURL     string
	credentials domain.CredentialSource
	imageModel  string
	imagenModel string
	videoModel  string
	maxDownload int64
	inlineTTL   time.Duration
	httpClient  *http.Client
	logger      *infra.Logger
	now         func() time.Time

	mu     sync.Mutex
	inline map[string]inlineResult
}

type inlineResult struct {
	ref     domain.ResultRef
	created time.Time
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		credentials: opts.Credentials,
		imageModel:  firstNonEmpty(opts.ImageModel, defaultImageModel),
		imagenModel: firstNonEmpty(opts.ImagenModel, defaultImagenModel),
		videoModel:  firstNonEmpty(opts.VideoModel, defaultVideoModel),
		maxDownload: positiveOr(opts.MaxDownloadBytes, defaultMaxDownloadBytes),
		inlineTTL:   positiveOr(opts.InlineTTL, defaultInlineTTL),
		httpClient:  client,
		logger:      logger,
		now:         now,
		inline:      make(map[string]inlineResult),
	}, nil
}

// key returns the API key or a permanent missing credential error.
func (c *Client) key(ctx context.Context, op string) (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	if c.credentials != nil {
		token, err := c.credentials.Token(ctx, providerName)
		if err != nil {
			return "", transportError(op, fmt.Errorf("resolve credential: %w", err))
		}
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	return "", permanentError(op, domain.ErrMissingCredential)
}

func (c *Client) invokeGemini(ctx context.Context, op, method, path string, payload any, out any) error {
	apiKey, err := c.key(ctx, op)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return permanentError(op, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return permanentError(op, fmt.Errorf("create request: %w", err))
	}
	q := req.URL.Query()
	q.Set("key", apiKey)
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportError(op, fmt.Errorf("invoke gemini: %w", err))
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", c.now().Sub(started)).
		Msg("genai: request finished")

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(op, resp.StatusCode, readErrorMessage(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError(op, fmt.Errorf("decode gemini response: %w", err))
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) (domain.ResultRef, bool, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return domain.ResultRef{}, false, permanentError("decode", fmt.Errorf("decode inline data: %w", err))
		}
		return domain.ResultRef{ContentType: part.InlineData.MimeType, Inline: data}, true, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		return domain.ResultRef{URI: part.FileData.FileURI, ContentType: part.FileData.MimeType}, true, nil
	}

	return domain.ResultRef{}, false, nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	const op = "download"
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", permanentError(op, fmt.Errorf("create download request: %w", err))
	}
	if strings.HasPrefix(target, c.baseURL) {
		apiKey, err := c.key(ctx, op)
		if err != nil {
			return nil, "", err
		}
		q := req.URL.Query()
		q.Set("key", apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "", transportError(op, fmt.Errorf("download file: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", statusError(op, resp.StatusCode, readErrorMessage(resp.Body))
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", transportError(op, fmt.Errorf("read file: %w", err))
	}
	if int64(len(blob)) > c.maxDownload {
		return nil, "", permanentError(op, fmt.Errorf("artifact exceeds %d bytes", c.maxDownload))
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) putInline(ref domain.ResultRef) domain.OperationHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for name, r := range c.inline {
		if now.Sub(r.created) > c.inlineTTL {
			delete(c.inline, name)
		}
	}
	name := inlinePrefix + newHandleID()
	c.inline[name] = inlineResult{ref: ref, created: now}
	return domain.NewOperationHandle(name)
}

func (c *Client) getInline(name string) (domain.ResultRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.inline[name]
	if !ok || c.now().Sub(r.created) > c.inlineTTL {
		return domain.ResultRef{}, false
	}
	return r.ref, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func positiveOr[T int64 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// IsMissingCredential reports whether err stems from an absent API key.
func IsMissingCredential(err error) bool {
	return errors.Is(err, domain.ErrMissingCredential)
}
