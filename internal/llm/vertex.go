package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/digkill/LetterDesk/internal/models"
)

const DefaultVertexModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexGenerator drafts letters with a Gemini model on Vertex AI.
type VertexGenerator struct {
	model  contentGenerator
	client *genai.Client
	log    *slog.Logger
}

func NewVertexGenerator(ctx context.Context, projectID, region, modelName string, log *slog.Logger) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultVertexModel
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(Temperature),
		MaxOutputTokens: genai.Ptr(MaxOutputTokens),
	}

	return &VertexGenerator{model: model, client: client, log: log}, nil
}

func (g *VertexGenerator) Generate(ctx context.Context, docType models.DocType, fields map[string]string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(BuildPrompt(docType, fields)))
	if err != nil {
		if g.log != nil {
			g.log.Error("vertex generate content", "err", err, "doc_type", docType)
		}
		if isRateLimit(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *VertexGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
