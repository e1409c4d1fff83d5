package orchestrator

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"switchboard/internal/adapters/ai"
	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/internal/domain/usage"
	"switchboard/internal/metrics"
	"switchboard/pkg/errors"
)

// Event is one received chunk plus the state accumulated up to and including it.
type Event struct {
	Chunk completion.Chunk
	State Accumulator
}

// ChoiceState is the reassembled output of one choice so far.
type ChoiceState struct {
	Index        int
	Role         conversation.Role
	Content      string
	ToolCalls    []conversation.ToolCall
	FinishReason completion.FinishReason
}

// Accumulator folds chunks into a complete response. It is a value: Apply
// returns the next state and never modifies the receiver.
type Accumulator struct {
	ID      string
	Model   string
	Created int64
	Choices []ChoiceState
	Usage   *model.TokenUsage
	Cost    decimal.Decimal
	Chunks  int
}

func (a Accumulator) clone() Accumulator {
	out := a
	if a.Choices != nil {
		out.Choices = make([]ChoiceState, len(a.Choices))
		for i, ch := range a.Choices {
			out.Choices[i] = ch
			if ch.ToolCalls != nil {
				out.Choices[i].ToolCalls = make([]conversation.ToolCall, len(ch.ToolCalls))
				copy(out.Choices[i].ToolCalls, ch.ToolCalls)
			}
		}
	}
	if a.Usage != nil {
		u := *a.Usage
		out.Usage = &u
	}
	return out
}

func (a *Accumulator) choice(index int) *ChoiceState {
	for i := range a.Choices {
		if a.Choices[i].Index == index {
			return &a.Choices[i]
		}
	}
	a.Choices = append(a.Choices, ChoiceState{Index: index})
	return &a.Choices[len(a.Choices)-1]
}

// Apply returns the state after chunk. Tool call fragments are grouped by
// their index and their argument strings concatenated in arrival order.
func (a Accumulator) Apply(chunk completion.Chunk) Accumulator {
	next := a.clone()
	next.Chunks++

	if chunk.ID != "" {
		next.ID = chunk.ID
	}
	if chunk.Model != "" {
		next.Model = chunk.Model
	}
	if chunk.Created != 0 {
		next.Created = chunk.Created
	}

	for _, cc := range chunk.Choices {
		cs := next.choice(cc.Index)
		if cc.Delta.Role != "" {
			cs.Role = cc.Delta.Role
		}
		cs.Content += cc.Delta.Content

		for _, d := range cc.Delta.ToolCalls {
			for len(cs.ToolCalls) <= d.Index {
				cs.ToolCalls = append(cs.ToolCalls, conversation.ToolCall{})
			}
			tc := &cs.ToolCalls[d.Index]
			if d.ID != "" {
				tc.ID = d.ID
			}
			if d.Type != "" {
				tc.Type = d.Type
			}
			if d.Name != "" {
				tc.Function.Name = d.Name
			}
			tc.Function.Arguments += d.Arguments
		}

		if cc.FinishReason != "" {
			cs.FinishReason = cc.FinishReason
		}
	}

	if chunk.Usage != nil {
		u := *chunk.Usage
		next.Usage = &u
	}
	return next
}

// Completion renders the state as a one-shot response.
func (a Accumulator) Completion() *completion.ChatCompletion {
	resp := &completion.ChatCompletion{
		ID:      a.ID,
		Object:  completion.ObjectCompletion,
		Created: a.Created,
		Model:   a.Model,
		Choices: make([]completion.Choice, 0, len(a.Choices)),
		Cost:    a.Cost,
	}
	if a.Usage != nil {
		u := *a.Usage
		resp.Usage = &u
	}

	st := a.clone()
	sort.SliceStable(st.Choices, func(i, j int) bool { return st.Choices[i].Index < st.Choices[j].Index })
	for _, cs := range st.Choices {
		role := cs.Role
		if role == "" {
			role = conversation.RoleAssistant
		}
		for i := range cs.ToolCalls {
			if cs.ToolCalls[i].Type == "" {
				cs.ToolCalls[i].Type = conversation.ToolCallTypeFunction
			}
		}
		resp.Choices = append(resp.Choices, completion.Choice{
			Index:        cs.Index,
			Message:      completion.Message{Role: role, Content: cs.Content, ToolCalls: cs.ToolCalls},
			FinishReason: cs.FinishReason,
		})
	}
	return resp
}

func (a Accumulator) outcome() outcome {
	var out outcome
	for i, cs := range a.Choices {
		out.toolCalls += len(cs.ToolCalls)
		if i == 0 {
			out.finishReason = cs.FinishReason
		}
	}
	return out
}

// Stream is a started streamed completion. Recv is not safe for concurrent
// use; Close may be called from any goroutine.
type Stream struct {
	o     *Orchestrator
	ctx   context.Context
	call  *call
	model model.Model
	user  string
	inner ai.ChunkStream
	start time.Time

	state     Accumulator
	reported  bool
	accounted bool
	finished  bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Model is the resolved model serving the stream.
func (s *Stream) Model() model.Model { return s.model }

// State returns the accumulated state so far.
func (s *Stream) State() Accumulator { return s.state }

// Recv returns the next event, or io.EOF once the backend is done.
func (s *Stream) Recv() (Event, error) {
	if s.finished || s.closed.Load() {
		return Event{State: s.state}, io.EOF
	}

	chunk, err := s.inner.Recv()
	if err == io.EOF {
		s.finish()
		return Event{State: s.state}, io.EOF
	}
	if err != nil {
		s.report(err)
		s.finished = true
		if s.closed.Load() {
			return Event{State: s.state}, io.EOF
		}
		s.call.log.Debugw("Stream failed", "error", err, "kind", errors.Kind(err), "chunks", s.state.Chunks)
		return Event{State: s.state}, err
	}
	s.report(nil)

	s.state = s.state.Apply(chunk)
	if chunk.IsTerminal() && !s.accounted {
		s.accounted = true
		s.call.enter(PhaseAccounting)
		s.state.Cost = s.o.account(s.ctx, s.model, usage.ModeStream, *chunk.Usage, time.Since(s.start), s.user, s.state.outcome())
	}

	return Event{Chunk: chunk, State: s.state}, nil
}

// report records the adapter call once, at the first chunk or the first error.
func (s *Stream) report(err error) {
	if s.reported {
		return
	}
	s.reported = true
	metrics.RecordAdapterCall(s.model.Provider, s.model.Name, usage.ModeStream, time.Since(s.start), err)
}

func (s *Stream) finish() {
	s.finished = true
	s.report(nil)
	if !s.accounted {
		s.call.log.Debugw("Stream ended without usage, skipping accounting", "chunks", s.state.Chunks)
	}
	s.call.enter(PhaseDone)
}

// Close releases the backend stream. A stream closed before its terminal
// chunk is never accounted.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.inner.Close()
	})
	return s.closeErr
}

// Drain reads the stream to the end, closes it and returns the assembled response.
func (s *Stream) Drain() (*completion.ChatCompletion, error) {
	defer func() { _ = s.Close() }()

	for {
		_, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	resp := s.state.Completion()
	if resp.Model == "" {
		resp.Model = s.model.Name
	}
	return resp, nil
}
