// Package orchestrator runs one completion request end to end: it resolves
// the model, normalizes the conversation for it, invokes the adapter and
// accounts the reported usage.
package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"switchboard/internal/adapters/ai"
	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/internal/domain/usage"
	"switchboard/internal/metrics"
	"switchboard/internal/pipeline"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Phase is a state of one orchestrated call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseNormalizing
	PhaseInvoking
	PhaseAccounting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseNormalizing:
		return "normalizing"
	case PhaseInvoking:
		return "invoking"
	case PhaseAccounting:
		return "accounting"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Resolver maps a model path to its capability model and adapter constructor.
type Resolver interface {
	Resolve(path string) (model.Model, ai.Constructor, error)
}

// CredentialSource supplies the API key for a provider. An empty key is passed
// through and the adapter reports it as a missing credential.
type CredentialSource interface {
	APIKey(provider string) string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(provider string) string

func (f CredentialFunc) APIKey(provider string) string { return f(provider) }

// StaticCredentials serves keys from a map keyed by provider id.
type StaticCredentials map[string]string

func (s StaticCredentials) APIKey(provider string) string { return s[provider] }

// UsageRecorder receives one record per accounted call. Implementations must not block.
type UsageRecorder interface {
	Record(ctx context.Context, rec *usage.Record)
}

// Orchestrator executes completion requests against the registry.
type Orchestrator struct {
	resolver Resolver
	creds    CredentialSource
	recorder UsageRecorder
	log      *logger.Logger
}

// New creates an orchestrator. recorder and log may be nil.
func New(resolver Resolver, creds CredentialSource, recorder UsageRecorder, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Component("orchestrator")
	}
	if creds == nil {
		creds = StaticCredentials{}
	}
	return &Orchestrator{
		resolver: resolver,
		creds:    creds,
		recorder: recorder,
		log:      log,
	}
}

// call tracks the phase of one request for logging.
type call struct {
	path  string
	mode  string
	phase Phase
	log   *logger.Logger
}

func (o *Orchestrator) newCall(path, mode string) *call {
	return &call{path: path, mode: mode, log: o.log.With("path", path, "mode", mode)}
}

func (c *call) enter(p Phase) {
	c.log.Debugw("Phase transition", "from", c.phase.String(), "to", p.String())
	c.phase = p
}

// prepared is everything needed to invoke the adapter.
type prepared struct {
	model   model.Model
	adapter ai.Adapter
	result  pipeline.Result
}

// prepare runs Resolving and Normalizing, then builds the adapter. No adapter
// is constructed when either phase fails.
func (o *Orchestrator) prepare(c *call, conv conversation.Conversation, opts completion.ExecuteOptions, streaming bool) (*prepared, error) {
	c.enter(PhaseResolving)
	m, ctor, err := o.resolver.Resolve(c.path)
	if err != nil {
		metrics.RecordRejection(PhaseResolving.String(), err)
		return nil, err
	}
	if ctor == nil {
		err := &errors.ProviderUnavailableError{Provider: m.Provider}
		metrics.RecordRejection(PhaseResolving.String(), err)
		return nil, err
	}
	c.log = c.log.With("provider", m.Provider, "model", m.Name)

	c.enter(PhaseNormalizing)
	if streaming {
		if err := pipeline.CheckStreaming(m); err != nil {
			metrics.RecordRejection(PhaseNormalizing.String(), err)
			return nil, err
		}
	}
	result, err := pipeline.Normalize(m, conv, opts)
	if err != nil {
		metrics.RecordRejection(PhaseNormalizing.String(), err)
		return nil, err
	}
	if len(result.Applied) > 0 {
		steps := make([]string, len(result.Applied))
		for i, s := range result.Applied {
			steps[i] = string(s)
		}
		metrics.RecordRewrites(steps)
		c.log.Debugw("Conversation normalized", "rewrites", steps)
	}

	c.enter(PhaseInvoking)
	adapter, err := ctor(m)
	if err != nil {
		return nil, errors.Wrapf(err, "build adapter for %s", m.Path())
	}
	adapter.SetCredential(o.creds.APIKey(m.Provider))

	return &prepared{model: m, adapter: adapter, result: result}, nil
}

// Execute performs a one-shot completion for the model at path.
func (o *Orchestrator) Execute(ctx context.Context, path string, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error) {
	c := o.newCall(path, usage.ModeInvoke)

	p, err := o.prepare(c, conv, opts, false)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.adapter.Invoke(ctx, p.result.Conversation, p.result.Options)
	latency := time.Since(start)
	metrics.RecordAdapterCall(p.model.Provider, p.model.Name, usage.ModeInvoke, latency, err)
	if err != nil {
		c.log.Debugw("Adapter call failed", "error", err, "kind", errors.Kind(err))
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = p.model.Name
	}

	c.enter(PhaseAccounting)
	if resp.Usage != nil {
		resp.Cost = o.account(ctx, p.model, usage.ModeInvoke, *resp.Usage, latency, opts.User, summarize(resp))
	} else {
		c.log.Debug("Backend reported no usage, skipping accounting")
	}

	c.enter(PhaseDone)
	return resp, nil
}

// ExecuteStream starts a streamed completion. The caller must Close the stream.
func (o *Orchestrator) ExecuteStream(ctx context.Context, path string, conv conversation.Conversation, opts completion.ExecuteOptions) (*Stream, error) {
	c := o.newCall(path, usage.ModeStream)

	p, err := o.prepare(c, conv, opts, true)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	inner, err := p.adapter.InvokeStream(ctx, p.result.Conversation, p.result.Options)
	if err != nil {
		metrics.RecordAdapterCall(p.model.Provider, p.model.Name, usage.ModeStream, time.Since(start), err)
		c.log.Debugw("Adapter stream failed", "error", err, "kind", errors.Kind(err))
		return nil, err
	}

	return &Stream{
		o:     o,
		ctx:   ctx,
		call:  c,
		model: p.model,
		user:  opts.User,
		inner: inner,
		start: start,
	}, nil
}

// outcome carries response details that end up on the usage record.
type outcome struct {
	toolCalls    int
	finishReason completion.FinishReason
}

func summarize(resp *completion.ChatCompletion) outcome {
	var out outcome
	for i, ch := range resp.Choices {
		out.toolCalls += len(ch.Message.ToolCalls)
		if i == 0 {
			out.finishReason = ch.FinishReason
		}
	}
	return out
}

// account prices the usage, updates metrics and hands the record to the recorder.
func (o *Orchestrator) account(ctx context.Context, m model.Model, mode string, u model.TokenUsage, latency time.Duration, user string, out outcome) decimal.Decimal {
	rec := usage.NewRecord(m, mode, u, latency)
	rec.User = user
	rec.RequestID = RequestID(ctx)
	rec.ToolCallsCount = uint16(out.toolCalls)
	rec.FinishReason = string(out.finishReason)

	metrics.RecordUsage(m.Provider, m.Name, u, rec.TotalCostUSD)
	if o.recorder != nil {
		o.recorder.Record(ctx, rec)
	}
	return rec.TotalCostUSD
}

type requestIDKey struct{}

// WithRequestID attaches a request id that ends up on usage records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
