package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

// GeminiAdapter calls Google Gemini through the genai SDK.
type GeminiAdapter struct {
	baseAdapter
}

// Ensure GeminiAdapter implements Adapter
var _ Adapter = (*GeminiAdapter)(nil)

// NewGeminiAdapter creates an adapter for m. An empty baseURL uses the SDK default.
func NewGeminiAdapter(m model.Model, baseURL string, limiter RateLimiter, clients *ClientCache) *GeminiAdapter {
	return &GeminiAdapter{baseAdapter: newBaseAdapter(m, baseURL, limiter, clients)}
}

func (a *GeminiAdapter) client(ctx context.Context, key string) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient(key),
	}
	if a.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: a.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return client, nil
}

// Invoke sends a one-shot GenerateContent request.
func (a *GeminiAdapter) Invoke(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.client(ctx, key)
	if err != nil {
		return nil, err
	}

	contents, cfg := a.convertToGemini(conv, opts)
	resp, err := client.Models.GenerateContent(ctx, a.model.APIName(), contents, cfg)
	if err != nil {
		return nil, a.classifyGemini(err)
	}

	return a.convertResponse(resp), nil
}

// InvokeStream starts GenerateContentStream. Gemini reports cumulative usage on
// every response, so usage is attached to a final synthetic chunk.
func (a *GeminiAdapter) InvokeStream(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (ChunkStream, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.client(ctx, key)
	if err != nil {
		return nil, err
	}

	contents, cfg := a.convertToGemini(conv, opts)
	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, a.model.APIName(), contents, cfg))

	// surface request errors (auth, 429) from InvokeStream itself
	first, err, ok := next()
	if err != nil {
		stop()
		return nil, a.classifyGemini(err)
	}

	s := &geminiStreamState{id: newCompletionID(), created: nowUnix(), model: a.model.Name}
	pending := []completion.Chunk{}
	if ok {
		pending = s.apply(first)
	}

	return &chunkQueue{
		pending: pending,
		pull: func() ([]completion.Chunk, error) {
			if !ok {
				return s.finish(), io.EOF
			}
			resp, err, more := next()
			if err != nil {
				return nil, a.classifyGemini(err)
			}
			if !more {
				ok = false
				return s.finish(), io.EOF
			}
			return s.apply(resp), nil
		},
		closeFn: func() error {
			stop()
			return nil
		},
	}, nil
}

func (a *GeminiAdapter) classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return a.classify(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return a.classify(apiErrPtr.Code, err)
	}
	return a.classify(0, err)
}

func (a *GeminiAdapter) convertToGemini(conv conversation.Conversation, opts completion.ExecuteOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}

	var system []*genai.Part
	var contents []*genai.Content
	callNames := map[string]string{}

	for _, turn := range conv.Turns {
		if turn.TurnRole() == conversation.RoleSystem {
			system = append(system, genai.NewPartFromText(conversation.Text(turn)))
			continue
		}
		role, parts := geminiParts(turn, callNames)
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}

	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.TopP != nil {
		p := float32(*opts.TopP)
		cfg.TopP = &p
	}
	if opts.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*opts.MaxTokens)
	}
	if opts.N != nil {
		cfg.CandidateCount = int32(*opts.N)
	}
	if opts.ResponseFormat.IsJSON() {
		cfg.ResponseMIMEType = "application/json"
	}
	if opts.ResponseFormat.HasSchema() {
		if schema := cleanSchema(opts.ResponseFormat.JSONSchema.Schema); schema != nil {
			cfg.ResponseJsonSchema = schema
		}
	}

	if len(opts.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			decl := &genai.FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
			}
			if schema := cleanSchema(tool.Function.Parameters); schema != nil {
				decl.ParametersJsonSchema = schema
			}
			decls = append(decls, decl)
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	switch opts.ToolChoice {
	case completion.ToolChoiceAuto:
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	case completion.ToolChoiceRequired:
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}}
	case completion.ToolChoiceNone:
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}
	}

	return contents, cfg
}

// geminiParts converts one turn. callNames remembers tool call ids so that
// results, which only carry the id, can name their function.
func geminiParts(turn conversation.Turn, callNames map[string]string) (string, []*genai.Part) {
	switch t := turn.(type) {
	case conversation.Basic:
		return geminiRole(t.Role), []*genai.Part{genai.NewPartFromText(t.Content)}

	case conversation.MultiModal:
		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			switch part := p.(type) {
			case conversation.TextPart:
				parts = append(parts, genai.NewPartFromText(part.Text))
			case conversation.ImagePart:
				parts = append(parts, geminiImage(part.URL))
			}
		}
		return geminiRole(t.Role), parts

	case conversation.ToolInvocation:
		parts := []*genai.Part{}
		if t.Content != "" {
			parts = append(parts, genai.NewPartFromText(t.Content))
		}
		for _, tc := range t.Calls {
			callNames[tc.ID] = tc.Function.Name
			part := genai.NewPartFromFunctionCall(tc.Function.Name, decodeArgs(tc.Function.Arguments))
			part.FunctionCall.ID = tc.ID
			parts = append(parts, part)
		}
		return genai.RoleModel, parts

	case conversation.ToolResult:
		part := genai.NewPartFromFunctionResponse(callNames[t.CallID], geminiResult(t.Content))
		part.FunctionResponse.ID = t.CallID
		return genai.RoleUser, []*genai.Part{part}

	case conversation.FunctionInvocation:
		return genai.RoleModel, []*genai.Part{genai.NewPartFromFunctionCall(t.Name, decodeArgs(t.Arguments))}

	case conversation.FunctionResult:
		return genai.RoleUser, []*genai.Part{genai.NewPartFromFunctionResponse(t.Name, geminiResult(t.Content))}
	}
	return genai.RoleUser, nil
}

func geminiRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func geminiImage(url string) *genai.Part {
	img, err := ParseImageDataURI(url)
	if err == nil {
		if data, derr := base64.StdEncoding.DecodeString(img.Data); derr == nil {
			return genai.NewPartFromBytes(data, img.MediaType)
		}
	}
	return genai.NewPartFromURI(url, "image/jpeg")
}

// geminiResult wraps tool output. JSON objects pass through, anything else goes under "result".
func geminiResult(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func (a *GeminiAdapter) convertResponse(resp *genai.GenerateContentResponse) *completion.ChatCompletion {
	out := &completion.ChatCompletion{
		ID:      orDefault(resp.ResponseID),
		Object:  completion.ObjectCompletion,
		Created: nowUnix(),
		Model:   a.model.Name,
		Usage:   geminiUsage(resp.UsageMetadata),
	}
	if !resp.CreateTime.IsZero() {
		out.Created = resp.CreateTime.Unix()
	}

	for i, cand := range resp.Candidates {
		msg := completion.Message{Role: conversation.RoleAssistant}
		var text []string
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part.Thought {
					continue
				}
				if part.Text != "" {
					text = append(text, part.Text)
				}
				if part.FunctionCall != nil {
					msg.ToolCalls = append(msg.ToolCalls, geminiToolCall(part.FunctionCall))
				}
			}
		}
		msg.Content = strings.Join(text, "")

		reason := geminiFinishReason(cand.FinishReason)
		if len(msg.ToolCalls) > 0 && reason == completion.FinishReasonStop {
			reason = completion.FinishReasonToolCalls
		}
		out.Choices = append(out.Choices, completion.Choice{Index: i, Message: msg, FinishReason: reason})
	}

	return out
}

func geminiToolCall(fc *genai.FunctionCall) conversation.ToolCall {
	id := fc.ID
	if id == "" {
		id = "call_" + strings.TrimPrefix(newCompletionID(), "chatcmpl-")
	}
	return conversation.ToolCall{
		ID:   id,
		Type: conversation.ToolCallTypeFunction,
		Function: conversation.FunctionCall{
			Name:      fc.Name,
			Arguments: encodeArgs(fc.Args),
		},
	}
}

func geminiUsage(u *genai.GenerateContentResponseUsageMetadata) *model.TokenUsage {
	if u == nil {
		return usageFrom(0, 0, 0, 0)
	}
	return usageFrom(int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount), int(u.ThoughtsTokenCount))
}

func geminiFinishReason(reason genai.FinishReason) completion.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return completion.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII, genai.FinishReasonImageSafety:
		return completion.FinishReasonContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return completion.FinishReasonError
	default:
		return completion.FinishReasonStop
	}
}

type geminiStreamState struct {
	id      string
	created int64
	model   string
	usage   *genai.GenerateContentResponseUsageMetadata
	tools   map[int]int // candidate index -> tool calls emitted
	started bool
}

func (s *geminiStreamState) apply(resp *genai.GenerateContentResponse) []completion.Chunk {
	if resp == nil {
		return nil
	}
	if resp.UsageMetadata != nil {
		s.usage = resp.UsageMetadata
	}
	if s.tools == nil {
		s.tools = map[int]int{}
	}

	chunk := completion.Chunk{ID: s.id, Object: completion.ObjectChunk, Created: s.created, Model: s.model}
	for i, cand := range resp.Candidates {
		delta := completion.Delta{}
		if !s.started {
			delta.Role = conversation.RoleAssistant
		}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part.Thought {
					continue
				}
				delta.Content += part.Text
				if part.FunctionCall != nil {
					tc := geminiToolCall(part.FunctionCall)
					delta.ToolCalls = append(delta.ToolCalls, completion.ToolCallDelta{
						Index:     s.tools[i],
						ID:        tc.ID,
						Type:      tc.Type,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					})
					s.tools[i]++
				}
			}
		}
		cc := completion.ChunkChoice{Index: i, Delta: delta}
		if cand.FinishReason != "" {
			cc.FinishReason = geminiFinishReason(cand.FinishReason)
			if s.tools[i] > 0 && cc.FinishReason == completion.FinishReasonStop {
				cc.FinishReason = completion.FinishReasonToolCalls
			}
		}
		chunk.Choices = append(chunk.Choices, cc)
	}
	s.started = true

	if len(chunk.Choices) == 0 {
		return nil
	}
	return []completion.Chunk{chunk}
}

// finish emits the usage-bearing terminal chunk.
func (s *geminiStreamState) finish() []completion.Chunk {
	return []completion.Chunk{{
		ID:      s.id,
		Object:  completion.ObjectChunk,
		Created: s.created,
		Model:   s.model,
		Usage:   geminiUsage(s.usage),
	}}
}
