package ai

import (
	"context"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
)

// Adapter performs calls against one backend model. It receives a conversation
// already normalized for its model and options already validated.
type Adapter interface {
	// Model returns the capability model the adapter was built for.
	Model() model.Model

	// SetCredential replaces the API key used for subsequent calls.
	SetCredential(key string)

	// Invoke sends a one-shot completion request.
	Invoke(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error)

	// InvokeStream starts a streamed completion. The last chunk carries usage.
	InvokeStream(ctx context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (ChunkStream, error)
}

// ChunkStream yields chunks until Recv returns io.EOF. Close releases the
// underlying connection and is safe to call more than once.
type ChunkStream interface {
	Recv() (completion.Chunk, error)
	Close() error
}

// Constructor builds an adapter for a resolved model.
type Constructor func(m model.Model) (Adapter, error)
