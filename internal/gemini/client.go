package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/poster"
	"poster-studio/internal/prompt"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
)

// MaxReferenceImages caps the product photos attached to one request.
const MaxReferenceImages = 3

// AnalysisUnavailable is returned by RequestAnalysis when the model answered
// without any text.
const AnalysisUnavailable = "Analysis unavailable."

const (
	opProposals = "proposals"
	opPoster    = "poster"
	opEdit      = "edit"
	opAnalysis  = "analysis"
)

// Models names the remote model used for each kind of request.
type Models struct {
	Proposals string
	Analysis  string
	Edit      string
	Standard  string
	Premium   string
}

func DefaultModels() Models {
	return Models{
		Proposals: "gemini-3-pro-preview",
		Analysis:  "gemini-3-pro-preview",
		Edit:      "gemini-2.5-flash-image",
		Standard:  "gemini-2.5-flash-image",
		Premium:   "gemini-3-pro-image-preview",
	}
}

func (m Models) withDefaults() Models {
	def := DefaultModels()
	pick := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return fallback
	}
	return Models{
		Proposals: pick(m.Proposals, def.Proposals),
		Analysis:  pick(m.Analysis, def.Analysis),
		Edit:      pick(m.Edit, def.Edit),
		Standard:  pick(m.Standard, def.Standard),
		Premium:   pick(m.Premium, def.Premium),
	}
}

// ImageModel resolves a variant to its remote model name.
func (m Models) ImageModel(v poster.ModelVariant) string {
	if v == poster.ModelPremium {
		return m.Premium
	}
	return m.Standard
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Models     Models
	Prompts    *prompt.Assembler
}

type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     zerolog.Logger
	models     Models
	prompts    *prompt.Assembler
	tracer     trace.Tracer
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := strings.Trim(strings.TrimSpace(opts.APIVersion), "/")
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	prompts := opts.Prompts
	if prompts == nil {
		prompts = prompt.New(prompt.Options{})
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("component", "gemini").Logger(),
		models:     opts.Models.withDefaults(),
		prompts:    prompts,
		tracer:     otel.Tracer("poster-studio/internal/gemini"),
	}
}

func (c *Client) Models() Models {
	return c.models
}

// RequestProposals asks for a batch of poster concepts. The answer must be a
// JSON array of complete proposals; identifiers are made unique locally.
func (c *Client) RequestProposals(ctx context.Context, sub poster.Submission) (_ []poster.Proposal, err error) {
	ctx, span := c.startSpan(ctx, opProposals, c.models.Proposals)
	defer func() { endSpan(span, err) }()

	spec := c.prompts.Proposals(sub)

	var parts []part
	if sub.UseReference {
		parts = append(parts, imageParts(sub.ReferenceImages)...)
	}
	parts = append(parts, part{Text: spec.Text})

	req := generateContentRequest{
		Contents:          []content{{Role: "user", Parts: parts}},
		SystemInstruction: systemContent(spec.SystemInstruction),
		GenerationConfig: &generationConfig{
			ResponseMIMEType:   spec.ResponseMIMEType,
			ResponseJSONSchema: spec.Schema,
		},
	}

	resp, err := c.generateContent(ctx, opProposals, c.models.Proposals, req)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeParts(resp)
	if err != nil {
		return nil, newError(KindSchemaViolation, opProposals, "", err)
	}
	text := reduceParts(parsed).Combined
	if text == "" {
		return nil, newError(KindEmptyResult, opProposals, blockExplanation(resp), nil)
	}

	proposals, err := parseProposals(text)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("gemini.proposals", len(proposals)))
	return proposals, nil
}

// RequestPosterImage renders the chosen proposal. The first MaxReferenceImages
// product photos are attached ahead of the instruction text.
func (c *Client) RequestPosterImage(ctx context.Context, p poster.Proposal, cfg poster.GenerationConfig, products []dataurl.Image) (_ dataurl.Image, err error) {
	model := c.models.ImageModel(cfg.Model)
	ctx, span := c.startSpan(ctx, opPoster, model)
	defer func() { endSpan(span, err) }()

	spec := c.prompts.Poster(p, cfg)

	parts := imageParts(products)
	parts = append(parts, part{Text: spec.Text})

	img := &imageConfig{AspectRatio: strings.TrimSpace(cfg.AspectRatio)}
	if cfg.Model.SupportsImageSize() {
		img.ImageSize = strings.TrimSpace(cfg.ImageSize)
		if img.ImageSize == "" {
			img.ImageSize = poster.DefaultGenerationConfig().ImageSize
		}
	}

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        img,
		},
	}

	return c.requestImage(ctx, opPoster, model, req)
}

// RequestPosterEdit applies a free-form instruction to an existing poster.
func (c *Client) RequestPosterEdit(ctx context.Context, current dataurl.Image, instruction string) (_ dataurl.Image, err error) {
	ctx, span := c.startSpan(ctx, opEdit, c.models.Edit)
	defer func() { endSpan(span, err) }()

	spec := c.prompts.Edit(instruction)
	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{inlinePart(current), {Text: spec.Text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	return c.requestImage(ctx, opEdit, c.models.Edit, req)
}

// RequestAnalysis returns a written critique of the poster, or
// AnalysisUnavailable when the model produced no text.
func (c *Client) RequestAnalysis(ctx context.Context, current dataurl.Image) (_ string, err error) {
	ctx, span := c.startSpan(ctx, opAnalysis, c.models.Analysis)
	defer func() { endSpan(span, err) }()

	spec := c.prompts.Analysis()
	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{inlinePart(current), {Text: spec.Text}}}},
	}

	resp, err := c.generateContent(ctx, opAnalysis, c.models.Analysis, req)
	if err != nil {
		return "", err
	}

	parsed, err := decodeParts(resp)
	if err != nil {
		c.logger.Warn().Err(err).Msg("analysis response has undecodable parts")
		return AnalysisUnavailable, nil
	}
	text := strings.TrimSpace(reduceParts(parsed).FirstText())
	if text == "" {
		return AnalysisUnavailable, nil
	}
	return text, nil
}

func (c *Client) requestImage(ctx context.Context, op, model string, req generateContentRequest) (dataurl.Image, error) {
	resp, err := c.generateContent(ctx, op, model, req)
	if err != nil {
		return dataurl.Image{}, err
	}

	parsed, err := decodeParts(resp)
	if err != nil {
		return dataurl.Image{}, newError(KindSchemaViolation, op, "", err)
	}

	out := reduceParts(parsed)
	if out.Image == nil {
		explanation := out.Combined
		if explanation == "" {
			explanation = blockExplanation(resp)
		}
		return dataurl.Image{}, newError(KindNoImageReturned, op, explanation, nil)
	}
	if out.Combined != "" {
		c.logger.Debug().Str("op", op).Str("text", truncate(out.Combined, 200)).Msg("image returned with text")
	}
	return *out.Image, nil
}

func (c *Client) generateContent(ctx context.Context, op, model string, payload generateContentRequest) (generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, newError(KindService, op, "", fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, newError(KindService, op, "", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Str("model", model).Msg("gemini request failed")
		return generateContentResponse{}, newError(KindService, op, "", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, newError(KindService, op, "", fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug().
		Str("op", op).
		Str("model", model).
		Int("status", httpResp.StatusCode).
		Int("bytes", len(rawBody)).
		Dur("elapsed", time.Since(started)).
		Msg("gemini response")

	if httpResp.StatusCode >= 400 {
		e := newError(KindService, op, apiErrorMessage(rawBody), nil)
		e.StatusCode = httpResp.StatusCode
		return generateContentResponse{}, e
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, newError(KindSchemaViolation, op, "", fmt.Errorf("decode response: %w", err))
	}
	return decoded, nil
}

func (c *Client) startSpan(ctx context.Context, op, model string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "gemini."+op, trace.WithAttributes(
		attribute.String("gemini.op", op),
		attribute.String("gemini.model", model),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		var gerr *Error
		if errors.As(err, &gerr) {
			span.SetAttributes(attribute.String("gemini.error_kind", gerr.Kind.String()))
		}
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// parseProposals accepts the model's JSON, optionally wrapped in a code
// fence, and checks every proposal is complete.
func parseProposals(raw string) ([]poster.Proposal, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, newError(KindEmptyResult, opProposals, "", nil)
	}

	var proposals []poster.Proposal
	if err := json.Unmarshal([]byte(fragment), &proposals); err != nil {
		return nil, newError(KindSchemaViolation, opProposals, "", fmt.Errorf("decode proposals: %w", err))
	}
	if len(proposals) == 0 {
		return nil, newError(KindEmptyResult, opProposals, "", nil)
	}

	seen := make(map[string]struct{}, len(proposals))
	for i := range proposals {
		if missing := proposals[i].MissingFields(); len(missing) > 0 {
			return nil, newError(KindSchemaViolation, opProposals, "",
				fmt.Errorf("proposal %d: missing %s", i, strings.Join(missing, ", ")))
		}
		id := strings.TrimSpace(proposals[i].ID)
		if _, dup := seen[id]; dup {
			id = uuid.NewString()
		}
		seen[id] = struct{}{}
		proposals[i].ID = id
	}
	return proposals, nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return ""
	}
	start := strings.IndexAny(text, "[{")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

func apiErrorMessage(body []byte) string {
	var env apiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && strings.TrimSpace(env.Error.Message) != "" {
		return env.Error.Message
	}
	return truncate(strings.TrimSpace(string(body)), 500)
}

func systemContent(text string) *content {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &content{Parts: []part{{Text: text}}}
}

func imageParts(images []dataurl.Image) []part {
	if len(images) > MaxReferenceImages {
		images = images[:MaxReferenceImages]
	}
	parts := make([]part, 0, len(images)+1)
	for _, img := range images {
		if img.IsZero() {
			continue
		}
		parts = append(parts, inlinePart(img))
	}
	return parts
}

func inlinePart(img dataurl.Image) part {
	mime := img.MimeType
	if mime == "" {
		mime = dataurl.DefaultMimeType
	}
	return part{InlineData: &blob{MimeType: mime, Data: img.Base64()}}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
