package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Provider names with dedicated handling.
const (
	ProviderNameOpenAI    = "openai"
	ProviderNameAnthropic = "anthropic"
	ProviderNameGoogle    = "google"
	ProviderNameDeepSeek  = "deepseek"
)

// defaultMaxTokens is sent to backends that require max_tokens when the caller set none.
const defaultMaxTokens = 4096

// baseAdapter holds what every concrete adapter needs: the model, the current
// credential, the provider limiter and the shared HTTP client pool.
type baseAdapter struct {
	model   model.Model
	baseURL string
	limiter RateLimiter
	clients *ClientCache
	log     *logger.Logger

	mu  sync.RWMutex
	key string
}

func newBaseAdapter(m model.Model, baseURL string, limiter RateLimiter, clients *ClientCache) baseAdapter {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	if clients == nil {
		clients = NewClientCache(DefaultClientConfig())
	}
	return baseAdapter{
		model:   m,
		baseURL: clients.BaseURL(baseURL),
		limiter: limiter,
		clients: clients,
		log:     logger.Component("adapter").With("provider", m.Provider, "model", m.Name),
	}
}

// Model returns the capability model the adapter was built for.
func (b *baseAdapter) Model() model.Model { return b.model }

// SetCredential replaces the API key used for subsequent calls.
func (b *baseAdapter) SetCredential(key string) {
	b.mu.Lock()
	b.key = key
	b.mu.Unlock()
}

func (b *baseAdapter) credential() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.key == "" {
		return "", errors.Wrapf(errors.ErrMissingCredential, "no API key for provider %s", b.model.Provider)
	}
	return b.key, nil
}

func (b *baseAdapter) httpClient(key string) *http.Client {
	return b.clients.Get(b.baseURL, key)
}

// acquire waits on the provider limiter and returns the credential to use.
func (b *baseAdapter) acquire(ctx context.Context) (string, error) {
	key, err := b.credential()
	if err != nil {
		return "", err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return key, nil
}

func (b *baseAdapter) classify(status int, err error) error {
	return ClassifyError(b.model.Provider, b.model.Name, status, err)
}

// usageFrom builds TokenUsage, deriving the total when the backend omits it.
func usageFrom(prompt, completionTokens, total, reasoning int) *model.TokenUsage {
	if total == 0 {
		total = prompt + completionTokens + reasoning
	}
	return &model.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		ReasoningTokens:  reasoning,
	}
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func nowUnix() int64 { return time.Now().Unix() }

func orDefault(id string) string {
	if id == "" {
		return newCompletionID()
	}
	return id
}

// decodeArgs parses tool call arguments. Malformed JSON becomes an empty object.
func decodeArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	_ = json.Unmarshal([]byte(raw), &args)
	return args
}

func encodeArgs(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	out, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// chunkQueue is a ChunkStream over a pull function. Chunks produced ahead of
// time are buffered and returned first.
type chunkQueue struct {
	pending []completion.Chunk
	pull    func() ([]completion.Chunk, error)
	closeFn func() error

	once   sync.Once
	err    error
	closed bool
}

func (q *chunkQueue) Recv() (completion.Chunk, error) {
	for len(q.pending) == 0 {
		if q.err != nil {
			return completion.Chunk{}, q.err
		}
		if q.closed {
			return completion.Chunk{}, io.EOF
		}
		chunks, err := q.pull()
		q.pending = append(q.pending, chunks...)
		if err != nil {
			q.err = err
		}
	}
	c := q.pending[0]
	q.pending = q.pending[1:]
	return c, nil
}

func (q *chunkQueue) Close() error {
	var err error
	q.once.Do(func() {
		q.closed = true
		q.pending = nil
		if q.closeFn != nil {
			err = q.closeFn()
		}
	})
	return err
}
