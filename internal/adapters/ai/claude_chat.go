package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	baseAdapter
}

// Ensure AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)

// NewAnthropicAdapter creates an adapter for m. An empty baseURL uses the public endpoint.
func NewAnthropicAdapter(m model.Model, baseURL string, limiter RateLimiter, clients *ClientCache) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicAdapter{baseAdapter: newBaseAdapter(m, baseURL, limiter, clients)}
}

// Invoke sends a chat completion request to the Messages API.
func (a *AnthropicAdapter) Invoke(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.send(ctx, key, a.convertToClaude(conv, opts, false))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a.classify(resp.StatusCode, errors.Wrap(err, "read claude response"))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return nil, a.classify(resp.StatusCode, errors.Wrap(err, "unmarshal claude response"))
	}

	return a.convertFromClaude(&claudeResp), nil
}

// InvokeStream starts a streamed Messages API call.
func (a *AnthropicAdapter) InvokeStream(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (ChunkStream, error) {
	key, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.send(ctx, key, a.convertToClaude(conv, opts, true))
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	state := &claudeStreamState{model: a.model.Name, toolIndex: map[int]int{}}
	return &chunkQueue{
		pull:    func() ([]completion.Chunk, error) { return a.pullEvent(scanner, state) },
		closeFn: resp.Body.Close,
	}, nil
}

// send posts the request and returns the response when the status is 200.
func (a *AnthropicAdapter) send(ctx context.Context, key string, req claudeRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal claude request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.baseURL, "/")+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.httpClient(key).Do(httpReq)
	if err != nil {
		return nil, a.classify(0, errors.Wrap(err, "send claude request"))
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Type != "" {
			return nil, classifyResponse(a.model.Provider, a.model.Name, resp,
				errors.Newf("claude API error (%d): %s - %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message))
		}
		return nil, classifyResponse(a.model.Provider, a.model.Name, resp,
			errors.Newf("claude API error (%d): %s", resp.StatusCode, string(respBody)))
	}

	return resp, nil
}

// Claude API types
type claudeRequest struct {
	Model       string            `json:"model"`
	Messages    []claudeMessage   `json:"messages"`
	System      string            `json:"system,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Tools       []claudeTool      `json:"tools,omitempty"`
	ToolChoice  *claudeToolChoice `json:"tool_choice,omitempty"`
	Metadata    *claudeMetadata   `json:"metadata,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string          `json:"role"` // "user" or "assistant"
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string                 `json:"type"` // "text", "image", "tool_use", "tool_result"
	Text      string                 `json:"text,omitempty"`
	Source    *claudeImageSource     `json:"source,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Content   string                 `json:"content,omitempty"` // For tool_result
	ToolUseID string                 `json:"tool_use_id,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type claudeTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type claudeToolChoice struct {
	Type string `json:"type"` // "auto", "any", "none"
}

type claudeMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type claudeResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []claudeContent `json:"content"`
	Model        string          `json:"model"`
	StopReason   string          `json:"stop_reason"`
	StopSequence string          `json:"stop_sequence,omitempty"`
	Usage        claudeUsage     `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// convertToClaude converts a normalized conversation to Claude's format.
func (a *AnthropicAdapter) convertToClaude(conv conversation.Conversation, opts completion.ExecuteOptions, stream bool) claudeRequest {
	req := claudeRequest{
		Model:       a.model.APIName(),
		MaxTokens:   defaultMaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      stream,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	} else if a.model.CompletionLength > 0 && a.model.CompletionLength < req.MaxTokens {
		req.MaxTokens = a.model.CompletionLength
	}
	if opts.User != "" {
		req.Metadata = &claudeMetadata{UserID: opts.User}
	}

	// System turns travel outside the message list
	var system []string
	for _, turn := range conv.Turns {
		if turn.TurnRole() == conversation.RoleSystem {
			system = append(system, conversation.Text(turn))
			continue
		}
		role, blocks := claudeBlocks(turn)
		req.Messages = appendClaudeMessage(req.Messages, role, blocks)
	}
	req.System = strings.Join(system, "\n\n")

	for _, tool := range opts.Tools {
		schema := cleanSchema(tool.Function.Parameters)
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		req.Tools = append(req.Tools, claudeTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	switch opts.ToolChoice {
	case completion.ToolChoiceAuto:
		req.ToolChoice = &claudeToolChoice{Type: "auto"}
	case completion.ToolChoiceRequired:
		req.ToolChoice = &claudeToolChoice{Type: "any"}
	case completion.ToolChoiceNone:
		req.ToolChoice = &claudeToolChoice{Type: "none"}
	}

	return req
}

// appendClaudeMessage merges consecutive same-role messages; the API rejects them.
func appendClaudeMessage(msgs []claudeMessage, role string, blocks []claudeContent) []claudeMessage {
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, claudeMessage{Role: role, Content: blocks})
}

func claudeBlocks(turn conversation.Turn) (string, []claudeContent) {
	switch t := turn.(type) {
	case conversation.Basic:
		return string(t.Role), []claudeContent{{Type: "text", Text: t.Content}}

	case conversation.MultiModal:
		blocks := make([]claudeContent, 0, len(t.Parts))
		for _, p := range t.Parts {
			switch part := p.(type) {
			case conversation.TextPart:
				blocks = append(blocks, claudeContent{Type: "text", Text: part.Text})
			case conversation.ImagePart:
				blocks = append(blocks, claudeContent{Type: "image", Source: claudeImage(part.URL)})
			}
		}
		return string(t.Role), blocks

	case conversation.ToolInvocation:
		blocks := []claudeContent{}
		if t.Content != "" {
			blocks = append(blocks, claudeContent{Type: "text", Text: t.Content})
		}
		for _, tc := range t.Calls {
			blocks = append(blocks, claudeContent{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: decodeArgs(tc.Function.Arguments),
			})
		}
		return "assistant", blocks

	case conversation.ToolResult:
		return "user", []claudeContent{{Type: "tool_result", ToolUseID: t.CallID, Content: t.Content}}

	case conversation.FunctionInvocation:
		return "assistant", []claudeContent{{
			Type:  "tool_use",
			ID:    legacyCallID(t.Name),
			Name:  t.Name,
			Input: decodeArgs(t.Arguments),
		}}

	case conversation.FunctionResult:
		return "user", []claudeContent{{Type: "tool_result", ToolUseID: legacyCallID(t.Name), Content: t.Content}}
	}
	return "user", nil
}

// legacyCallID pairs a legacy function call with its result by name.
func legacyCallID(name string) string {
	return "fn_" + name
}

func claudeImage(url string) *claudeImageSource {
	img, err := ParseImageDataURI(url)
	if err != nil {
		return &claudeImageSource{Type: "url", URL: url}
	}
	return &claudeImageSource{Type: "base64", MediaType: img.MediaType, Data: img.Data}
}

// convertFromClaude converts Claude's response to the unified format.
func (a *AnthropicAdapter) convertFromClaude(resp *claudeResponse) *completion.ChatCompletion {
	out := &completion.ChatCompletion{
		ID:      orDefault(resp.ID),
		Object:  completion.ObjectCompletion,
		Created: nowUnix(),
		Model:   a.model.Name,
		Usage:   usageFrom(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0, 0),
	}

	msg := completion.Message{Role: conversation.RoleAssistant}
	var textParts []string
	for _, content := range resp.Content {
		switch content.Type {
		case "text":
			textParts = append(textParts, content.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{
				ID:   content.ID,
				Type: conversation.ToolCallTypeFunction,
				Function: conversation.FunctionCall{
					Name:      content.Name,
					Arguments: encodeArgs(content.Input),
				},
			})
		}
	}
	msg.Content = strings.Join(textParts, "\n")

	out.Choices = []completion.Choice{{
		Index:        0,
		Message:      msg,
		FinishReason: claudeFinishReason(resp.StopReason),
	}}
	return out
}

func claudeFinishReason(reason string) completion.FinishReason {
	switch reason {
	case "max_tokens":
		return completion.FinishReasonLength
	case "tool_use":
		return completion.FinishReasonToolCalls
	case "refusal":
		return completion.FinishReasonContentFilter
	default:
		// end_turn, stop_sequence
		return completion.FinishReasonStop
	}
}

// claudeStreamEvent is the union of every Messages SSE payload.
type claudeStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		ID    string      `json:"id"`
		Usage claudeUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *claudeContent `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *claudeUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type claudeStreamState struct {
	id        string
	model     string
	created   int64
	input     int
	toolIndex map[int]int // content block index -> tool call index
	tools     int
	done      bool
}

func (s *claudeStreamState) chunk(delta completion.Delta, finish completion.FinishReason) completion.Chunk {
	return completion.Chunk{
		ID:      s.id,
		Object:  completion.ObjectChunk,
		Created: s.created,
		Model:   s.model,
		Choices: []completion.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// pullEvent reads SSE lines until one event yields chunks or the stream ends.
func (a *AnthropicAdapter) pullEvent(scanner *bufio.Scanner, s *claudeStreamState) ([]completion.Chunk, error) {
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var ev claudeStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, a.classify(0, errors.Wrap(err, "decode claude stream event"))
		}

		chunks, err := a.applyEvent(ev, s)
		if err != nil || len(chunks) > 0 {
			return chunks, err
		}
		if s.done {
			return nil, io.EOF
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, a.classify(0, errors.Wrap(err, "read claude stream"))
	}
	return nil, io.EOF
}

func (a *AnthropicAdapter) applyEvent(ev claudeStreamEvent, s *claudeStreamState) ([]completion.Chunk, error) {
	switch ev.Type {
	case "message_start":
		s.created = nowUnix()
		s.id = newCompletionID()
		if ev.Message != nil {
			s.id = orDefault(ev.Message.ID)
			s.input = ev.Message.Usage.InputTokens
		}
		return []completion.Chunk{s.chunk(completion.Delta{Role: conversation.RoleAssistant}, "")}, nil

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			idx := s.tools
			s.toolIndex[ev.Index] = idx
			s.tools++
			return []completion.Chunk{s.chunk(completion.Delta{ToolCalls: []completion.ToolCallDelta{{
				Index: idx,
				ID:    ev.ContentBlock.ID,
				Type:  conversation.ToolCallTypeFunction,
				Name:  ev.ContentBlock.Name,
			}}}, "")}, nil
		}

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []completion.Chunk{s.chunk(completion.Delta{Content: ev.Delta.Text}, "")}, nil
		case "input_json_delta":
			idx, ok := s.toolIndex[ev.Index]
			if !ok || ev.Delta.PartialJSON == "" {
				return nil, nil
			}
			return []completion.Chunk{s.chunk(completion.Delta{ToolCalls: []completion.ToolCallDelta{{
				Index:     idx,
				Arguments: ev.Delta.PartialJSON,
			}}}, "")}, nil
		}

	case "message_delta":
		output := 0
		if ev.Usage != nil {
			output = ev.Usage.OutputTokens
		}
		reason := completion.FinishReasonStop
		if ev.Delta != nil {
			reason = claudeFinishReason(ev.Delta.StopReason)
		}
		c := s.chunk(completion.Delta{}, reason)
		c.Usage = usageFrom(s.input, output, 0, 0)
		return []completion.Chunk{c}, nil

	case "message_stop":
		s.done = true

	case "error":
		msg := "stream error"
		if ev.Error != nil {
			msg = ev.Error.Type + ": " + ev.Error.Message
			if ev.Error.Type == "rate_limit_error" {
				return nil, a.classify(http.StatusTooManyRequests, errors.New(msg))
			}
		}
		return nil, a.classify(0, errors.New(msg))
	}

	// ping, content_block_stop
	return nil, nil
}
