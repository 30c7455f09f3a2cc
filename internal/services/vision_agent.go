package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/vision"
	"github.com/boomware/crosslist/pkg/models"
)

// AnalysisTier selects between the full model and the cheaper lite model.
type AnalysisTier string

const (
	TierFull AnalysisTier = "full"
	TierLite AnalysisTier = "lite"
)

// Complexity is the caller's hint about how much analysis an item needs.
type Complexity string

const (
	// ComplexityAuto lets the service pick a tier from the submission.
	ComplexityAuto Complexity = ""
	// ComplexitySimple grades condition only, on the lite model.
	ComplexitySimple Complexity = "simple"
	// ComplexityDetailed always runs the full analysis.
	ComplexityDetailed Complexity = "detailed"
)

// Published per-million-token rates for the two model tiers, used to
// estimate spend per call.
var visionTokenRates = map[AnalysisTier]struct{ in, out float64 }{
	TierFull: {3.00, 15.00},
	TierLite: {0.25, 1.25},
}

func visionCostEstimate(tier AnalysisTier, usage vision.Usage) float64 {
	rate := visionTokenRates[tier]
	in := usage.InputTokens + usage.CacheCreationInputTokens + usage.CacheReadInputTokens
	return float64(in)/1e6*rate.in + float64(usage.OutputTokens)/1e6*rate.out
}

// Vision API limits image dimensions; anything larger gets downscaled
// before encoding.
const maxImageDimension = 1568

// InferenceClient is satisfied by vision.Client and mocked in tests.
type InferenceClient interface {
	CreateMessage(ctx context.Context, req *vision.MessagesRequest) (*vision.MessagesResponse, error)
}

// ExtractionError reports that no parseable JSON document was found in the
// model's response text.
type ExtractionError struct {
	Snippet string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON document found in model response: %q", e.Snippet)
}

const analysisSystemPrompt = `You are an expert product analyst for a resale business. You examine photos of secondhand items and produce structured appraisals: what the item is, its brand, model, category and notable features; its physical condition on the scale NEW, LIKE_NEW, GOOD, FAIR, POOR with specific defects; who would buy it and which points differentiate it; and an estimated retail value range in USD. Respond with a single JSON object and no surrounding commentary. The JSON must match this shape:
{
  "product": {"name": string, "brand": string, "category": string, "model": string, "features": [string], "confidence": number},
  "condition": {"state": string, "notes": string, "defects": [string], "confidence": number},
  "marketPositioning": {"targetBuyer": string, "useCases": [string], "uniqueSellingPoints": [string], "competitorProducts": [string]},
  "estimatedRetailValue": {"low": number, "high": number, "confidence": number}
}`

const analysisSchema = `{
  "type": "object",
  "required": ["product", "condition", "estimatedRetailValue"],
  "properties": {
    "product": {
      "type": "object",
      "required": ["name", "brand"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "brand": {"type": "string", "minLength": 1},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "condition": {
      "type": "object",
      "required": ["state"],
      "properties": {
        "state": {"enum": ["NEW", "LIKE_NEW", "GOOD", "FAIR", "POOR"]}
      }
    },
    "estimatedRetailValue": {
      "type": "object",
      "required": ["low", "high"],
      "properties": {
        "low": {"type": "number", "minimum": 0},
        "high": {"type": "number", "minimum": 0}
      }
    }
  }
}`

// VisionAgentService turns item photos into a structured ProductAnalysis.
// Results are cached by image content hash so re-submitting the same photos
// never pays for a second inference call.
type VisionAgentService struct {
	cfg     config.VisionConfig
	client  InferenceClient
	images  *ImageProcessorService
	cache   *CacheService
	metrics *MetricsCollector
	schema  *gojsonschema.Schema
	logger  *logrus.Logger
}

func NewVisionAgentService(cfg config.VisionConfig, client InferenceClient, images *ImageProcessorService, cache *CacheService, metrics *MetricsCollector, logger *logrus.Logger) (*VisionAgentService, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(analysisSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis schema: %w", err)
	}
	return &VisionAgentService{
		cfg:     cfg,
		client:  client,
		images:  images,
		cache:   cache,
		metrics: metrics,
		schema:  schema,
		logger:  logger,
	}, nil
}

func (s *VisionAgentService) recordUsage(tier AnalysisTier, usage vision.Usage) {
	if s.metrics == nil {
		return
	}
	in := usage.InputTokens + usage.CacheCreationInputTokens + usage.CacheReadInputTokens
	s.metrics.RecordVisionUsage(string(tier), in, usage.OutputTokens, visionCostEstimate(tier, usage))
}

// AnalyzeProduct runs the vision model over the item's photos. Up to four
// photos are sent; the rest only contribute to the cache key.
func (s *VisionAgentService) AnalyzeProduct(ctx context.Context, imagePaths []string, tier AnalysisTier) (*models.ProductAnalysis, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no images provided")
	}

	hashes := make([]string, 0, len(imagePaths))
	for _, p := range imagePaths {
		h, err := s.images.FileHash(p)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}

	cacheKey := VisionKey(hashes, string(tier))
	if cached, ok := s.cache.GetVision(ctx, cacheKey); ok {
		s.logger.WithField("key", cacheKey).Debug("Vision cache hit")
		return cached, nil
	}

	content := make([]vision.ContentBlock, 0, len(imagePaths)+1)
	sendCount := len(imagePaths)
	if sendCount > 4 {
		sendCount = 4
	}
	for _, p := range imagePaths[:sendCount] {
		encoded, err := s.prepareImage(p)
		if err != nil {
			return nil, err
		}
		content = append(content, vision.ImageBlock("image/jpeg", encoded))
	}
	content = append(content, vision.TextBlock("Analyze this item for resale listing."))

	system := []vision.SystemBlock{{Type: "text", Text: analysisSystemPrompt}}
	if s.cfg.PromptCaching {
		system[0].CacheControl = vision.EphemeralCache()
	}

	model := s.cfg.FullModel
	if tier == TierLite {
		model = s.cfg.LiteModel
	}

	start := time.Now()
	resp, err := s.client.CreateMessage(ctx, &vision.MessagesRequest{
		Model:     model,
		MaxTokens: s.cfg.MaxTokens,
		System:    system,
		Messages: []vision.Message{
			{Role: "user", Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}
	s.recordUsage(tier, resp.Usage)

	analysis, err := s.parseAnalysis(resp.Text())
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"brand":       analysis.Product.Brand,
		"name":        analysis.Product.Name,
		"condition":   analysis.Condition.State,
		"tier":        tier,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Product analysis completed")

	s.cache.SetVision(ctx, cacheKey, analysis)
	return analysis, nil
}

// AssessCondition grades a single photo on the lite tier. It is much
// cheaper than a full analysis and enough for routing decisions.
func (s *VisionAgentService) AssessCondition(ctx context.Context, imagePath string) (*models.ConditionAssessment, error) {
	encoded, err := s.prepareImage(imagePath)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateMessage(ctx, &vision.MessagesRequest{
		Model:     s.cfg.LiteModel,
		MaxTokens: 512,
		System: []vision.SystemBlock{{
			Type: "text",
			Text: `Grade this secondhand item's condition. Respond with one JSON object: {"state": "NEW"|"LIKE_NEW"|"GOOD"|"FAIR"|"POOR", "notes": string, "defects": [string], "confidence": number}`,
		}},
		Messages: []vision.Message{
			{Role: "user", Content: []vision.ContentBlock{
				vision.ImageBlock("image/jpeg", encoded),
				vision.TextBlock("Assess the condition."),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("condition assessment failed: %w", err)
	}
	s.recordUsage(TierLite, resp.Usage)

	doc, err := ExtractJSON(resp.Text())
	if err != nil {
		return nil, err
	}
	var assessment models.ConditionAssessment
	if err := json.Unmarshal([]byte(doc), &assessment); err != nil {
		return nil, fmt.Errorf("failed to decode condition assessment: %w", err)
	}
	return &assessment, nil
}

// AnalyzeWithRouting runs the analysis the caller's complexity hint asks
// for. Simple items only get a condition grade; detailed items always run
// the full model. Without a hint, single-photo submissions run on the
// lite tier and everything else gets the full analysis.
func (s *VisionAgentService) AnalyzeWithRouting(ctx context.Context, imagePaths []string, complexity Complexity) (*models.ProductAnalysis, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no images provided")
	}

	switch complexity {
	case ComplexitySimple:
		assessment, err := s.AssessCondition(ctx, imagePaths[0])
		if err != nil {
			return nil, err
		}
		return &models.ProductAnalysis{Condition: *assessment}, nil
	case ComplexityDetailed:
		return s.AnalyzeProduct(ctx, imagePaths, TierFull)
	default:
		tier := TierFull
		if len(imagePaths) == 1 {
			tier = TierLite
		}
		return s.AnalyzeProduct(ctx, imagePaths, tier)
	}
}

// AnalyzeBatch runs full analyses for several items with bounded
// concurrency. Results keep the input order.
func (s *VisionAgentService) AnalyzeBatch(ctx context.Context, itemImages [][]string, concurrency int) ([]*models.ProductAnalysis, error) {
	if concurrency <= 0 {
		concurrency = 3
	}

	results := make([]*models.ProductAnalysis, len(itemImages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, paths := range itemImages {
		i, paths := i, paths
		g.Go(func() error {
			analysis, err := s.AnalyzeProduct(ctx, paths, TierFull)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GenerateTitles asks the lite model for listing title variants.
func (s *VisionAgentService) GenerateTitles(ctx context.Context, analysis *models.ProductAnalysis, count int) ([]string, error) {
	if count <= 0 {
		count = 3
	}

	prompt := fmt.Sprintf(
		"Write %d distinct marketplace listing titles for this item, each under 80 characters, keyword-rich, no emoji. Item: %s %s, category %s, condition %s. Respond with a JSON array of strings only.",
		count, analysis.Product.Brand, analysis.Product.Name, analysis.Product.Category, analysis.Condition.State,
	)

	resp, err := s.client.CreateMessage(ctx, &vision.MessagesRequest{
		Model:     s.cfg.LiteModel,
		MaxTokens: 512,
		Messages: []vision.Message{
			{Role: "user", Content: []vision.ContentBlock{vision.TextBlock(prompt)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("title generation failed: %w", err)
	}
	s.recordUsage(TierLite, resp.Usage)

	doc, err := ExtractJSON(resp.Text())
	if err != nil {
		return nil, err
	}
	var titles []string
	if err := json.Unmarshal([]byte(doc), &titles); err != nil {
		return nil, fmt.Errorf("failed to decode titles: %w", err)
	}
	return titles, nil
}

func (s *VisionAgentService) parseAnalysis(text string) (*models.ProductAnalysis, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to validate analysis: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return nil, fmt.Errorf("analysis failed schema validation: %s", strings.Join(issues, "; "))
	}

	var analysis models.ProductAnalysis
	if err := json.Unmarshal([]byte(doc), &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &analysis, nil
}

// prepareImage downscales to the API's dimension limit and re-encodes as
// JPEG before base64 encoding.
func (s *VisionAgentService) prepareImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", path, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var buf strings.Builder
	encoder := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := imaging.Encode(encoder, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExtractJSON finds the first balanced JSON object or array in text,
// tolerating prose before and after it. String literals and escapes are
// respected so braces inside values don't end the scan early.
func ExtractJSON(text string) (string, error) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", &ExtractionError{Snippet: snippet(text)}
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == open:
			depth++
		case !inString && ch == close:
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return "", &ExtractionError{Snippet: snippet(candidate)}
				}
				return candidate, nil
			}
		}
	}
	return "", &ExtractionError{Snippet: snippet(text)}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
