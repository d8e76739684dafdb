package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/samber/oops"
)

// PostDraft is the structured result of a text generation call.
type PostDraft struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// Generator is the multimodal generation capability consumed by the
// content services.
type Generator interface {
	GeneratePost(ctx context.Context, system, prompt string) (*PostDraft, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type OpenAIGenerator struct {
	client     openai.Client
	model      string
	imageModel string
}

func NewOpenAIGenerator(apiKey, model, imageModel string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		imageModel: imageModel,
	}
}

func (g *OpenAIGenerator) GeneratePost(ctx context.Context, system, prompt string) (*PostDraft, error) {
	response, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(system + "\n\nRespond with a JSON object only: " +
							`{"title": string, "text": string, "imagePrompt": string}`),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return nil, oops.With("context", "text generation").Wrap(err)
	}

	if len(response.Choices) == 0 {
		return nil, oops.Errorf("no response from model")
	}

	content := stripCodeFence(response.Choices[0].Message.Content)

	var draft PostDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, oops.With("context", "parsing model response").Wrap(err)
	}
	if draft.Title == "" || draft.Text == "" {
		return nil, oops.Errorf("model returned an incomplete post draft")
	}

	return &draft, nil
}

func (g *OpenAIGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModel(g.imageModel),
		Prompt:         prompt,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", oops.With("context", "image generation").Wrap(err)
	}

	if len(response.Data) == 0 || response.Data[0].URL == "" {
		return "", oops.Errorf("no image returned by model")
	}

	return response.Data[0].URL, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models insist on.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
