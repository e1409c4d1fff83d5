package ai

import (
	"context"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

// OpenAIAdapter talks to OpenAI and every backend exposing the OpenAI chat
// completions API (deepseek, groq, mistral, openrouter, together, xai, ...).
type OpenAIAdapter struct {
	baseAdapter
}

// Ensure OpenAIAdapter implements Adapter
var _ Adapter = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates an adapter for m served at baseURL.
func NewOpenAIAdapter(m model.Model, baseURL string, limiter RateLimiter, clients *ClientCache) *OpenAIAdapter {
	return &OpenAIAdapter{baseAdapter: newBaseAdapter(m, baseURL, limiter, clients)}
}

func (a *OpenAIAdapter) client(key string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(a.httpClient(key)),
		option.WithMaxRetries(0),
	}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	return openai.NewClient(opts...)
}

// Invoke sends a one-shot chat completion request.
func (a *OpenAIAdapter) Invoke(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}

	params, err := a.buildParams(conv, opts)
	if err != nil {
		return nil, err
	}

	client := a.client(key)
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.classifyOpenAI(err)
	}

	return a.convertResponse(resp), nil
}

// InvokeStream starts a streamed completion with usage reported on the last chunk.
func (a *OpenAIAdapter) InvokeStream(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (ChunkStream, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}

	params, err := a.buildParams(conv, opts)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	client := a.client(key)
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, a.classifyOpenAI(err)
	}

	return &chunkQueue{
		pull:    func() ([]completion.Chunk, error) { return a.pullChunk(stream) },
		closeFn: stream.Close,
	}, nil
}

func (a *OpenAIAdapter) pullChunk(stream *ssestream.Stream[openai.ChatCompletionChunk]) ([]completion.Chunk, error) {
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, a.classifyOpenAI(err)
		}
		return nil, io.EOF
	}
	return []completion.Chunk{a.convertChunk(stream.Current())}, nil
}

func (a *OpenAIAdapter) classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return a.classify(apiErr.StatusCode, err)
	}
	return a.classify(0, err)
}

func (a *OpenAIAdapter) buildParams(conv conversation.Conversation, opts completion.ExecuteOptions) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model.APIName()),
	}

	for i, turn := range conv.Turns {
		msg, err := toOpenAIMessage(turn)
		if err != nil {
			return params, errors.Wrapf(err, "turn %d", i)
		}
		params.Messages = append(params.Messages, msg)
	}

	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}
	if opts.N != nil {
		params.N = openai.Int(int64(*opts.N))
	}
	if opts.User != "" {
		params.User = openai.String(opts.User)
	}
	switch {
	case opts.ResponseFormat.HasSchema():
		js := opts.ResponseFormat.JSONSchema
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   js.Name,
			Schema: cleanSchema(js.Schema),
		}
		if js.Description != "" {
			schema.Description = openai.String(js.Description)
		}
		if js.Strict != nil {
			schema.Strict = openai.Bool(*js.Strict)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	case opts.ResponseFormat.IsJSON():
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	for _, tool := range opts.Tools {
		def := shared.FunctionDefinitionParam{
			Name:       tool.Function.Name,
			Parameters: shared.FunctionParameters(cleanSchema(tool.Function.Parameters)),
		}
		if tool.Function.Description != "" {
			def.Description = openai.String(tool.Function.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(def))
	}
	if opts.ToolChoice != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(opts.ToolChoice),
		}
	}

	return params, nil
}

func toOpenAIMessage(turn conversation.Turn) (openai.ChatCompletionMessageParamUnion, error) {
	switch t := turn.(type) {
	case conversation.Basic:
		switch t.Role {
		case conversation.RoleSystem:
			return openai.SystemMessage(t.Content), nil
		case conversation.RoleAssistant:
			return openai.AssistantMessage(t.Content), nil
		default:
			return openai.UserMessage(t.Content), nil
		}

	case conversation.MultiModal:
		if t.Role != conversation.RoleUser {
			// only user turns accept content parts
			if t.Role == conversation.RoleSystem {
				return openai.SystemMessage(t.Text()), nil
			}
			return openai.AssistantMessage(t.Text()), nil
		}
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(t.Parts))
		for _, p := range t.Parts {
			switch part := p.(type) {
			case conversation.TextPart:
				parts = append(parts, openai.TextContentPart(part.Text))
			case conversation.ImagePart:
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    part.URL,
					Detail: string(part.Detail),
				}))
			}
		}
		return openai.UserMessage(parts), nil

	case conversation.ToolInvocation:
		msg := openai.ChatCompletionAssistantMessageParam{}
		if t.Content != "" {
			msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(t.Content)}
		}
		for _, call := range t.Calls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}, nil

	case conversation.ToolResult:
		return openai.ToolMessage(t.Content, t.CallID), nil

	case conversation.FunctionInvocation:
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			FunctionCall: openai.ChatCompletionAssistantMessageParamFunctionCall{
				Name:      t.Name,
				Arguments: t.Arguments,
			},
		}}, nil

	case conversation.FunctionResult:
		return openai.ChatCompletionMessageParamUnion{OfFunction: &openai.ChatCompletionFunctionMessageParam{
			Name:    t.Name,
			Content: openai.String(t.Content),
		}}, nil
	}

	return openai.ChatCompletionMessageParamUnion{}, errors.Newf("unsupported turn type %T", turn)
}

func (a *OpenAIAdapter) convertResponse(resp *openai.ChatCompletion) *completion.ChatCompletion {
	out := &completion.ChatCompletion{
		ID:      orDefault(resp.ID),
		Object:  completion.ObjectCompletion,
		Created: resp.Created,
		Model:   a.model.Name,
		Usage:   openAIUsage(resp.Usage),
	}
	if out.Created == 0 {
		out.Created = nowUnix()
	}

	for _, choice := range resp.Choices {
		msg := completion.Message{
			Role:    conversation.RoleAssistant,
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{
				ID:   tc.ID,
				Type: conversation.ToolCallTypeFunction,
				Function: conversation.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out.Choices = append(out.Choices, completion.Choice{
			Index:        int(choice.Index),
			Message:      msg,
			FinishReason: openAIFinishReason(choice.FinishReason),
		})
	}

	return out
}

func (a *OpenAIAdapter) convertChunk(c openai.ChatCompletionChunk) completion.Chunk {
	out := completion.Chunk{
		ID:      c.ID,
		Object:  completion.ObjectChunk,
		Created: c.Created,
		Model:   a.model.Name,
	}
	if c.JSON.Usage.Valid() {
		out.Usage = openAIUsage(c.Usage)
	}

	for _, choice := range c.Choices {
		delta := completion.Delta{
			Role:    conversation.Role(choice.Delta.Role),
			Content: choice.Delta.Content,
		}
		for _, tc := range choice.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, completion.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		cc := completion.ChunkChoice{Index: int(choice.Index), Delta: delta}
		if choice.FinishReason != "" {
			cc.FinishReason = openAIFinishReason(choice.FinishReason)
		}
		out.Choices = append(out.Choices, cc)
	}

	return out
}

// openAIUsage moves reasoning tokens out of completion tokens, where OpenAI counts them.
func openAIUsage(u openai.CompletionUsage) *model.TokenUsage {
	reasoning := int(u.CompletionTokensDetails.ReasoningTokens)
	completionTokens := int(u.CompletionTokens) - reasoning
	if completionTokens < 0 {
		completionTokens = 0
	}
	return usageFrom(int(u.PromptTokens), completionTokens, int(u.TotalTokens), reasoning)
}

func openAIFinishReason(reason string) completion.FinishReason {
	switch reason {
	case "length":
		return completion.FinishReasonLength
	case "tool_calls", "function_call":
		return completion.FinishReasonToolCalls
	case "content_filter":
		return completion.FinishReasonContentFilter
	default:
		return completion.FinishReasonStop
	}
}
