package agent

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements LLMProvider for Google Gemini
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return "gemini"
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Call makes an API call to Google Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	model := p.client.GenerativeModel(request.Model)
	if request.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(request.SystemPrompt)}}
	}
	if request.Temperature > 0 {
		model.SetTemperature(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(request.MaxTokens))
	}
	if len(request.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
		for _, tool := range request.Tools {
			decls = append(decls, geminiDeclaration(tool))
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := geminiContents(request.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, err
	}

	out := &LLMResponse{ToolCalls: []ToolCall{}}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for i, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				out.Content += string(v)
			case genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:         fmt.Sprintf("call_%d_%s", i, v.Name),
					Name:       v.Name,
					Parameters: v.Args,
				})
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = &TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	return out, nil
}

// geminiContents maps the conversation to Gemini turns. Consecutive tool
// results collapse into one turn of function responses.
func geminiContents(messages []AgentMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			c := &genai.Content{Role: "model"}
			if msg.Content != "" {
				c.Parts = append(c.Parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				c.Parts = append(c.Parts, genai.FunctionCall{Name: tc.Name, Args: tc.Parameters})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case "tool":
			part := genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: map[string]any{"output": msg.Content},
			}
			if n := len(contents); n > 0 && isFunctionTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	return contents
}

func isFunctionTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[0].(genai.FunctionResponse)
	return ok
}

func geminiDeclaration(tool ToolSchema) *genai.FunctionDeclaration {
	decl := &genai.FunctionDeclaration{
		Name:        tool.Name,
		Description: tool.Description,
	}
	if len(tool.Parameters) == 0 {
		return decl
	}

	props := make(map[string]*genai.Schema, len(tool.Parameters))
	for _, p := range tool.Parameters {
		s := &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
		if s.Type == genai.TypeArray {
			s.Items = &genai.Schema{Type: genai.TypeString}
		}
		props[p.Name] = s
	}

	decl.Parameters = &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   tool.Required(),
	}
	return decl
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
