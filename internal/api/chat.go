package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/pkg/errors"
)

// chatRequest is the OpenAI-shaped request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	completion.ExecuteOptions
}

type chatMessage struct {
	Role         string                  `json:"role"`
	Content      json.RawMessage         `json:"content"`
	Name         string                  `json:"name,omitempty"`
	ToolCalls    []conversation.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID   string                  `json:"tool_call_id,omitempty"`
	FunctionCall *functionCall           `json:"function_call,omitempty"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL    string `json:"url"`
		Detail string `json:"detail,omitempty"`
	} `json:"image_url,omitempty"`
}

// decodeContent accepts a string, null, or an array of text/image parts.
func decodeContent(raw json.RawMessage) (string, []conversation.Part, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, invalidInput("content must be a string or an array of parts")
	}

	out := make([]conversation.Part, 0, len(parts))
	for i, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, conversation.TextPart{Text: p.Text})
		case "image_url":
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return "", nil, invalidInput("content[%d] image_url has no url", i)
			}
			detail := conversation.ImageDetail(p.ImageURL.Detail)
			if detail == "" {
				detail = conversation.ImageDetailAuto
			}
			out = append(out, conversation.ImagePart{URL: p.ImageURL.URL, Detail: detail})
		default:
			return "", nil, invalidInput("content[%d] has unknown type %q", i, p.Type)
		}
	}
	return "", out, nil
}

// toTurn maps one wire message onto the closed set of turn variants.
func (m chatMessage) toTurn(i int) (conversation.Turn, error) {
	role := conversation.Role(m.Role)
	if !role.Valid() {
		return nil, invalidInput("messages[%d] has unknown role %q", i, m.Role)
	}

	text, parts, err := decodeContent(m.Content)
	if err != nil {
		return nil, errors.Wrapf(err, "messages[%d]", i)
	}

	switch role {
	case conversation.RoleTool:
		if m.ToolCallID == "" {
			return nil, invalidInput("messages[%d] tool result needs tool_call_id", i)
		}
		return conversation.ToolResult{CallID: m.ToolCallID, Content: text}, nil
	case conversation.RoleFunction:
		return conversation.FunctionResult{Name: m.Name, Content: text}, nil
	}

	if role == conversation.RoleAssistant {
		if len(m.ToolCalls) > 0 {
			calls := make([]conversation.ToolCall, len(m.ToolCalls))
			for j, c := range m.ToolCalls {
				if c.Type == "" {
					c.Type = conversation.ToolCallTypeFunction
				}
				calls[j] = c
			}
			return conversation.ToolInvocation{Content: text, Calls: calls}, nil
		}
		if m.FunctionCall != nil {
			return conversation.FunctionInvocation{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}, nil
		}
	}

	if parts != nil {
		return conversation.MultiModal{Role: role, Parts: parts}, nil
	}
	return conversation.Basic{Role: role, Content: text}, nil
}

func (req chatRequest) conversation() (conversation.Conversation, error) {
	turns := make([]conversation.Turn, 0, len(req.Messages))
	for i, m := range req.Messages {
		t, err := m.toTurn(i)
		if err != nil {
			return conversation.Conversation{}, err
		}
		turns = append(turns, t)
	}
	return conversation.New(turns...), nil
}

func (s *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, invalidInput("malformed request body: %v", err))
		return
	}
	if req.Model == "" {
		s.writeError(w, r, invalidInput("model is required"))
		return
	}

	conv, err := req.conversation()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, req, conv)
		return
	}

	resp, err := s.deps.Completions.Execute(r.Context(), req.Model, conv, req.ExecuteOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamCompletion relays chunks as server-sent events and ends with [DONE].
// Errors before the first byte get a normal JSON error response.
func (s *handlers) streamCompletion(w http.ResponseWriter, r *http.Request, req chatRequest, conv conversation.Conversation) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming not supported by response writer"))
		return
	}

	stream, err := s.deps.Completions.ExecuteStream(r.Context(), req.Model, conv, req.ExecuteOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// long generations outlive the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeSSE(w, flusher, errorBody{Error: errorDetail{
				Message: err.Error(),
				Type:    errors.Kind(err),
				Code:    statusFor(err),
			}})
			s.log.Warnw("Stream aborted", "model", req.Model, "kind", errors.Kind(err), "error", err)
			return
		}
		writeSSE(w, flusher, ev.Chunk)
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w io.Writer, flusher http.Flusher, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
