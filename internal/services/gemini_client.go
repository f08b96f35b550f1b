package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

// AIClient is the language-model surface the pipeline depends on. Embedding
// calls are split by task: documents are embedded for storage, queries for
// retrieval, and the provider is told which is which.
type AIClient interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	GenerateAnswer(ctx context.Context, system string, user string) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schema map[string]any) (map[string]any, error)
}

const (
	embedTaskDocument = "RETRIEVAL_DOCUMENT"
	embedTaskQuery    = "RETRIEVAL_QUERY"

	// Provider limit on requests per batchEmbedContents call.
	embedBatchLimit = 100

	generateTemperature = 0.2
	generateMaxTokens   = 2048
)

type geminiClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	embedDim   int
	httpClient *http.Client

	maxRetries    int
	embedParallel int
}

func NewGeminiClient(log *logger.Logger) (AIClient, error) {
	apiKey := envutil.Str("GEMINI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	timeoutSec := envutil.Int("GEMINI_TIMEOUT_SECONDS", 180)
	if timeoutSec <= 0 {
		timeoutSec = 180
	}
	maxRetries := envutil.Int("GEMINI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}
	embedParallel := envutil.Int("GEMINI_EMBED_PARALLELISM", 4)
	if embedParallel < 1 {
		embedParallel = 1
	}

	return &geminiClient{
		log:           log.With("service", "GeminiClient"),
		baseURL:       envutil.Str("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		apiKey:        apiKey,
		model:         envutil.Str("GEMINI_MODEL", "gemini-flash-latest"),
		embedModel:    envutil.Str("GEMINI_EMBED_MODEL", "text-embedding-004"),
		embedDim:      envutil.Int("GEMINI_EMBED_DIM", 768),
		httpClient:    &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:    maxRetries,
		embedParallel: embedParallel,
	}, nil
}

type geminiHTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *geminiHTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Caller cancellation is checked separately in the retry loop;
		// a client-side timeout is worth another attempt.
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *geminiHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *geminiClient) doOnce(ctx context.Context, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				he.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, he
	}
	return raw, nil
}

func (c *geminiClient) do(ctx context.Context, path string, body any, out any) error {
	// exponential backoff: 1s, 2s, 4s, 8s (cap ~10s)
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("gemini decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		var httpErr *geminiHTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			sleepFor = httpErr.RetryAfter
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("Gemini request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// classify maps a transport-level failure onto the API error taxonomy.
// 429 becomes a quota error carrying Retry-After; everything else takes the
// constructor the caller hands in.
func classify(err error, wrap func(error) *apierr.Error) error {
	if err == nil {
		return nil
	}
	var httpErr *geminiHTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return apierr.Quota(err, httpErr.RetryAfter)
	}
	return wrap(err)
}

// ---- Embeddings ----

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type embedContentRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embeddingValues struct {
	Values []float32 `json:"values"`
}

type batchEmbedResponse struct {
	Embeddings []embeddingValues `json:"embeddings"`
}

type embedContentResponse struct {
	Embedding embeddingValues `json:"embedding"`
}

func (c *geminiClient) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	req := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = embedContentRequest{
			Model:                "models/" + c.embedModel,
			Content:              geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType:             taskType,
			OutputDimensionality: c.embedDim,
		}
	}

	var resp batchEmbedResponse
	if err := c.do(ctx, "/v1beta/models/"+c.embedModel+":batchEmbedContents", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *geminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.embedParallel)

	for start := 0; start < len(texts); start += embedBatchLimit {
		start := start
		end := start + embedBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[start:end], embedTaskDocument)
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, classify(err, apierr.Embedding)
	}
	return out, nil
}

func (c *geminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	req := embedContentRequest{
		Model:                "models/" + c.embedModel,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType:             embedTaskQuery,
		OutputDimensionality: c.embedDim,
	}
	var resp embedContentResponse
	if err := c.do(ctx, "/v1beta/models/"+c.embedModel+":embedContent", req, &resp); err != nil {
		return nil, classify(err, apierr.Embedding)
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, apierr.Embedding(errors.New("provider returned empty query embedding"))
	}
	return resp.Embedding.Values, nil
}

// ---- Generation ----

type generateRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64        `json:"temperature"`
	MaxOutputTokens  int            `json:"maxOutputTokens"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

func (c *geminiClient) generate(ctx context.Context, system, user string, cfg generationConfig) (string, error) {
	req := generateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
		GenerationConfig: cfg,
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	var resp generateResponse
	if err := c.do(ctx, "/v1beta/models/"+c.model+":generateContent", req, &resp); err != nil {
		return "", classify(err, apierr.Generation)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apierr.Generation(errors.New("provider returned no candidates"))
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", apierr.Generation(errors.New("provider returned empty text"))
	}
	return text, nil
}

func (c *geminiClient) GenerateAnswer(ctx context.Context, system string, user string) (string, error) {
	return c.generate(ctx, system, user, generationConfig{
		Temperature:     generateTemperature,
		MaxOutputTokens: generateMaxTokens,
	})
}

func (c *geminiClient) GenerateJSON(ctx context.Context, system string, user string, schema map[string]any) (map[string]any, error) {
	text, err := c.generate(ctx, system, user, generationConfig{
		Temperature:      generateTemperature,
		MaxOutputTokens:  generateMaxTokens,
		ResponseMimeType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if uErr := json.Unmarshal([]byte(stripCodeFence(text)), &out); uErr != nil {
		return nil, apierr.MalformedOutput(fmt.Errorf("decode model JSON: %w", uErr))
	}
	return out, nil
}

// stripCodeFence removes a ```json ... ``` wrapper the model sometimes adds
// even when asked for raw JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
