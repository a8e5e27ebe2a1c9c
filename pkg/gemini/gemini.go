package gemini

import (
	"context"
	"errors"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"JustNowBackend/pkg/retrypolicy"
)

// SystemPrompt defines the GenUI wire protocol for the model: raw JSON only,
// closed widget set, unique widget IDs.
const SystemPrompt = `You are the UI generator for "Just Now", a mobile app that renders server-driven UI from user intent.

Return ONLY a raw JSON object, no markdown fences, no commentary, matching:

{
  "intent_id": "uuid",
  "category": "SERVICE" | "INFO" | "CODE" | "UNKNOWN" | "CHAT",
  "ui_schema_version": "1.0",
  "slots": { "key": "value" },
  "ui_payload": { "components": [ ... ] }
}

Components (type tags are exact and case-sensitive):
- InfoCard: {"type":"InfoCard","widget_id":"...","title":"...","content_md":"...","style":"standard|highlight|warning"}
- ActionList: {"type":"ActionList","widget_id":"...","title":"...","items":[{"id":"...","title":"...","subtitle":"...","action":{"type":"deep_link|api_call|toast","url":"...","payload":{}}}]}
- MapView: {"type":"MapView","widget_id":"...","center":{"lat":0,"lng":0},"zoom":14.0,"markers":[{"lat":0,"lng":0,"title":"..."}]}
- WebView: {"type":"WebView","widget_id":"...","url":"https://...","title":"..."}

Rules:
1. Every widget_id and item id must be unique across the whole payload.
2. Taxi/ride requests: MapView plus ActionList with at least two ride options using api:order_ride?... deep links.
3. Informational requests: InfoCard with markdown content.
4. category SERVICE for actionable requests, CHAT for conversational ones.
5. Match the user's language.`

type IGemini interface {
	GenerateUI(ctx context.Context, userText string, deterministic bool) (string, error)
	ProviderName() string
}

type geminiClient struct {
	modelName string
	client    *genai.Client
}

func NewGeminiClient() (IGemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	modelName := os.Getenv("GEMINI_MODEL_NAME")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &geminiClient{
		modelName: modelName,
		client:    client,
	}, nil
}

func (g *geminiClient) ProviderName() string {
	return "gemini/" + g.modelName
}

func (g *geminiClient) GenerateUI(ctx context.Context, userText string, deterministic bool) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}

	temperature := float32(0.7)
	if deterministic {
		temperature = 0
	}
	model.SetTemperature(temperature)
	model.ResponseMIMEType = "application/json"

	res, err := model.GenerateContent(ctx, genai.Text(userText))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable,
			errors.New("empty response from Gemini"))
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable,
			errors.New("unexpected response part from Gemini"))
	}

	return string(text), nil
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return retrypolicy.NewError(retrypolicy.KindRateLimited, err)
		case apiErr.Code == 401 || apiErr.Code == 403:
			return retrypolicy.NewError(retrypolicy.KindAuthFailure, err)
		}
	}
	return retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable, err)
}

func (g *geminiClient) Close() {
	if g.client != nil {
		g.client.Close()
	}
}
