package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/provider"
	"go.opentelemetry.io/otel/attribute"
)

type chatResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string            `json:"name"`
	Schema jsonschema.Schema `json:"schema"`
	Strict bool              `json:"strict"`
}

// structuredReply is the schema the model is asked to fill: the reply text
// plus its own judgement of the fitting presentation tag.
type structuredReply struct {
	Content string `json:"content" jsonschema:"description=The assistant reply to the user"`
	Emotion string `json:"emotion" jsonschema:"enum=supportive,enum=calming,enum=warm,enum=celebratory,description=Presentation tone of the reply"`
}

// promptStructured asks for a JSON-schema constrained completion. Invalid or
// unknown emotion values fall back to keyword inference over the content.
func (c *Client) promptStructured(ctx context.Context, messages []message) (*generation.Reply, error) {
	ctx, span := tracer.Start(ctx, "prompt remote generation structured")
	defer span.End()

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(structuredReply{})

	span.SetAttributes(attribute.String("request.model", c.model))

	body, err := c.complete(ctx, completionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &chatResponseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "structuredReply",
				Schema: *schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var response completionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, &provider.TransientError{Provider: providerName, Reason: "response contained no choices"}
	}

	content := response.Choices[0].Message.Content
	// Some models wrap JSON output in a fenced block.
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = split[1]
	}

	var structured structuredReply
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		return nil, fmt.Errorf("error unmarshalling structured reply: %w", err)
	}

	text := postProcess(structured.Content)
	if text == "" {
		return nil, &provider.TransientError{Provider: providerName, Reason: "model returned empty content"}
	}

	tag := emotion.Tag(structured.Emotion)
	if !emotion.Valid(tag) || tag == emotion.Urgent {
		tag = emotion.Infer(text)
	}

	return &generation.Reply{Content: text, Emotion: tag}, nil
}
