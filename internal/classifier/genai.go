package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nao1215/toxguard/internal/model"
	"google.golang.org/genai"
)

const (
	// DefaultGenAIModel is the embedding model used by the GenAI backend.
	DefaultGenAIModel = "gemini-embedding-001"

	// GenAILabel is the label reported by the GenAI backend.
	GenAILabel = "toxic_similarity"
)

// DefaultAnchors are the reference phrases the GenAI backend compares
// page text against.
var DefaultAnchors = []string{
	"you are a worthless idiot",
	"I hate people like you, go die",
	"shut up you stupid piece of garbage",
	"nobody wants you here, kill yourself",
	"those people are vermin and should be wiped out",
}

// Embedder returns one embedding per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenAI scores texts by their embedding similarity to toxic anchor
// phrases. The score is the highest cosine similarity, clamped to [0, 1].
type GenAI struct {
	embedder Embedder
	anchors  []string

	mu      sync.Mutex
	vectors [][]float32
}

// NewGenAI creates a backend around embedder. An empty anchor list falls
// back to DefaultAnchors.
func NewGenAI(embedder Embedder, anchors []string) *GenAI {
	if len(anchors) == 0 {
		anchors = DefaultAnchors
	}
	return &GenAI{embedder: embedder, anchors: anchors}
}

// Name implements Backend.
func (g *GenAI) Name() string {
	return "genai"
}

// Preflight embeds the anchors.
func (g *GenAI) Preflight(ctx context.Context) error {
	_, err := g.anchorVectors(ctx)
	return err
}

// Classify implements Backend.
func (g *GenAI) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	anchors, err := g.anchorVectors(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([][]model.LabelScore, len(texts))
	for i := range texts {
		if i >= len(vecs) || len(vecs[i]) == 0 {
			continue
		}
		best := 0.0
		for _, a := range anchors {
			if s := cosine(vecs[i], a); s > best {
				best = s
			}
		}
		out[i] = []model.LabelScore{{Label: GenAILabel, Score: best}}
	}
	return out, nil
}

func (g *GenAI) anchorVectors(ctx context.Context) ([][]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.vectors != nil {
		return g.vectors, nil
	}
	vecs, err := g.embedder.Embed(ctx, g.anchors)
	if err != nil {
		return nil, fmt.Errorf("failed to embed anchors: %w", err)
	}
	if len(vecs) != len(g.anchors) {
		return nil, fmt.Errorf("%w: %d anchor embeddings for %d anchors", ErrUnexpectedResponse, len(vecs), len(g.anchors))
	}
	g.vectors = vecs
	return vecs, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// GeminiEmbedder embeds texts with the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates an embedder for apiKey. An empty model uses
// DefaultGenAIModel.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if modelName == "" {
		modelName = DefaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: modelName}, nil
}

// Embed implements Embedder.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
