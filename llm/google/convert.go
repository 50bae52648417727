package google

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/deepnoodle-ai/conductor/llm"
	"github.com/deepnoodle-ai/conductor/schema"
)

func contentsFromMessages(messages []*llm.Message) ([]*genai.Content, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	contents := make([]*genai.Content, 0, len(messages))
	for i, message := range messages {
		if message.Text == "" {
			return nil, fmt.Errorf("empty message detected (index %d)", i)
		}
		contents = append(contents, &genai.Content{
			Role:  string(message.Role),
			Parts: []*genai.Part{{Text: message.Text}},
		})
	}
	return contents, nil
}

func buildGenerateConfig(req *llm.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.TopK != nil {
		config.TopK = genai.Ptr(float32(*req.TopK))
	}
	if req.CachedContent != "" {
		config.CachedContent = req.CachedContent
	}
	if len(req.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaToGenAI(tool.Schema()),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	return config
}

func schemaToGenAI(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     genaiType(string(s.Type)),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = propertyToGenAI(prop)
		}
	}
	return out
}

func propertyToGenAI(p *schema.Property) *genai.Schema {
	if p == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(string(p.Type)),
		Description: p.Description,
		Enum:        p.Enum,
		Required:    p.Required,
	}
	if p.Items != nil {
		out.Items = propertyToGenAI(p.Items)
	}
	if len(p.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, prop := range p.Properties {
			out.Properties[name] = propertyToGenAI(prop)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}

func convertResponse(resp *genai.GenerateContentResponse) (*llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}
	candidate := resp.Candidates[0]

	out := &llm.Response{StopReason: llm.StopEndTurn}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("error marshaling function call args: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
					ID:        callID(part.FunctionCall),
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			case part.Text != "":
				out.Text += part.Text
			}
		}
	}
	if out.HasToolCalls() {
		out.StopReason = llm.StopToolCall
	} else if candidate.FinishReason == genai.FinishReasonMaxTokens {
		out.StopReason = llm.StopMaxSize
	}
	out.Usage = convertUsage(resp)
	return out, nil
}

func convertUsage(resp *genai.GenerateContentResponse) llm.Usage {
	metadata := resp.UsageMetadata
	if metadata == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		InputTokens:  int(metadata.PromptTokenCount),
		OutputTokens: int(metadata.CandidatesTokenCount),
		TotalTokens:  int(metadata.TotalTokenCount),
		CachedTokens: int(metadata.CachedContentTokenCount),
	}
}

func callID(call *genai.FunctionCall) string {
	if call.ID != "" {
		return call.ID
	}
	return "call_" + call.Name
}
