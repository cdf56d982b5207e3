package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "nftstake/core/errors"
	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/core/types"
	"nftstake/observability/metrics"
)

// DefaultMaxHops bounds the number of messages one ingress may cause.
const DefaultMaxHops = 64

var (
	ErrHopLimit    = errors.New("router: hop limit exceeded")
	errNotWired    = errors.New("router: not configured")
	errNoRecipient = errors.New("router: no actor at destination")
)

// Actor processes one message against a state transaction. Returning an error
// discards every write made through tx.
type Actor interface {
	Kind() string
	Receive(tx *state.Tx, env *types.Envelope) (*types.Outcome, error)
}

// Resolver maps a destination address to the actor living there. Addresses
// without an actor belong to external accounts.
type Resolver interface {
	Resolve(tx *state.Tx, addr [20]byte) (Actor, bool, error)
}

// Executor applies external effects and moves attached value. It is called
// only after the producing hop committed.
type Executor interface {
	Execute(ctx context.Context, effect types.Effect) error
	MoveValue(ctx context.Context, from, to [20]byte, amount *big.Int) error
}

// Hop records the outcome of one delivered message.
type Hop struct {
	Envelope types.Envelope `json:"envelope"`
	Op       uint32         `json:"op"`
	Actor    string         `json:"actor"`
	ExitCode int            `json:"exitCode"`
	Error    string         `json:"error,omitempty"`
}

// Trace is the full causal chain of one ingress message.
type Trace struct {
	QueryID uint64         `json:"queryId"`
	Hops    []Hop          `json:"hops"`
	Events  []*types.Event `json:"events"`
}

// ExitCode returns the exit code of the first hop, which is what the
// submitter observes directly.
func (t *Trace) ExitCode() int {
	if t == nil || len(t.Hops) == 0 {
		return coreerrors.CodeOK
	}
	return t.Hops[0].ExitCode
}

// Failed returns the first failing hop, if any.
func (t *Trace) Failed() (Hop, bool) {
	if t == nil {
		return Hop{}, false
	}
	for _, hop := range t.Hops {
		if hop.ExitCode != coreerrors.CodeOK {
			return hop, true
		}
	}
	return Hop{}, false
}

// Router delivers messages between actors. Each hop runs in its own state
// transaction under the destination actor's lock; outbound messages, effects
// and events are released only once that transaction committed.
type Router struct {
	state     *state.Manager
	resolver  Resolver
	executor  Executor
	emitter   events.Emitter
	locks     *LockManager
	logger    *slog.Logger
	telemetry *metrics.StakingMetrics
	tracer    trace.Tracer
	maxHops   int
}

// New constructs a router.
func New(manager *state.Manager, resolver Resolver, executor Executor) *Router {
	return &Router{
		state:     manager,
		resolver:  resolver,
		executor:  executor,
		emitter:   events.NoopEmitter{},
		locks:     NewLockManager(),
		logger:    slog.Default(),
		telemetry: metrics.Staking(),
		tracer:    otel.Tracer("nftstake/router"),
		maxHops:   DefaultMaxHops,
	}
}

// SetEmitter configures where committed events are published.
func (r *Router) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetLogger overrides the logger.
func (r *Router) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetMetrics overrides the telemetry sink; nil disables it.
func (r *Router) SetMetrics(telemetry *metrics.StakingMetrics) { r.telemetry = telemetry }

// SetMaxHops overrides the per-ingress hop limit.
func (r *Router) SetMaxHops(n int) {
	if n <= 0 {
		n = DefaultMaxHops
	}
	r.maxHops = n
}

// Locks exposes the per-actor lock manager so callers mutating actor state
// outside the router can serialise with it.
func (r *Router) Locks() *LockManager { return r.locks }

// Deliver processes env and everything it causes, breadth first. Any value
// attached to env must already have been moved to its destination.
func (r *Router) Deliver(ctx context.Context, env types.Envelope) (*Trace, error) {
	if r == nil || r.state == nil || r.resolver == nil || r.executor == nil {
		return nil, errNotWired
	}
	ctx, span := r.tracer.Start(ctx, "router.deliver", trace.WithAttributes(
		attribute.Int64("query.id", int64(env.QueryID)),
		attribute.String("envelope.id", env.ID.String()),
	))
	defer span.End()

	tr := &Trace{QueryID: env.QueryID}
	queue := []types.Envelope{env}
	for len(queue) > 0 {
		if len(tr.Hops) >= r.maxHops {
			span.SetStatus(codes.Error, ErrHopLimit.Error())
			r.unwind(ctx, tr, queue)
			return tr, ErrHopLimit
		}
		next := queue[0]
		queue = queue[1:]
		hop, out, err := r.step(ctx, next)
		if err != nil {
			span.RecordError(err)
			r.unwind(ctx, tr, append([]types.Envelope{next}, queue...))
			return tr, err
		}
		tr.Hops = append(tr.Hops, hop)
		if hop.ExitCode != coreerrors.CodeOK {
			if next.Bounce && !next.Bounced {
				back := next.BounceBack()
				if r.forward(ctx, back) {
					queue = append(queue, back)
				}
			}
			continue
		}
		if out == nil {
			continue
		}
		r.release(ctx, tr, next, out)
		for _, msg := range out.Messages {
			if r.forward(ctx, msg) {
				queue = append(queue, msg)
			}
		}
	}
	if hop, failed := tr.Failed(); failed {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", hop.ExitCode))
	} else {
		span.SetStatus(codes.Ok, "delivered")
	}
	return tr, nil
}

// release applies the effects and emits the events of a committed hop.
func (r *Router) release(ctx context.Context, tr *Trace, env types.Envelope, out *types.Outcome) {
	for _, effect := range out.Effects {
		if err := r.executor.Execute(ctx, effect); err != nil {
			r.telemetry.IncEffectFailure(effect.EffectKind())
			r.logger.Error("router: effect failed after commit",
				slog.String("kind", effect.EffectKind()),
				slog.Uint64("queryId", env.QueryID),
				slog.Any("error", err))
		}
	}
	for _, evt := range out.Events {
		tr.Events = append(tr.Events, evt)
		r.emitter.Emit(events.Wrap(evt))
	}
}

// unwind bounces every bounceable message still pending when delivery stops
// early, so a sender waiting on a reply can clear its in-flight state.
// Messages produced by those bounce hops are not delivered.
func (r *Router) unwind(ctx context.Context, tr *Trace, pending []types.Envelope) {
	for _, env := range pending {
		if !env.Bounce || env.Bounced {
			continue
		}
		back := env.BounceBack()
		if !r.forward(ctx, back) {
			continue
		}
		hop, out, err := r.step(ctx, back)
		if err != nil {
			r.logger.Error("router: bounce lost while unwinding",
				slog.Uint64("queryId", back.QueryID),
				slog.String("op", fmt.Sprintf("0x%08x", opcode(back))),
				slog.Any("error", err))
			continue
		}
		tr.Hops = append(tr.Hops, hop)
		if out != nil && hop.ExitCode == coreerrors.CodeOK {
			r.release(ctx, tr, back, out)
		}
	}
}

// forward moves the value attached to an outbound message. Messages whose
// value cannot be moved are dropped.
func (r *Router) forward(ctx context.Context, env types.Envelope) bool {
	value := env.AttachedValue()
	if value.Sign() == 0 {
		return true
	}
	if err := r.executor.MoveValue(ctx, env.From, env.To, value); err != nil {
		r.telemetry.IncEffectFailure("value_transfer")
		r.logger.Error("router: attached value not moved, message dropped",
			slog.Uint64("queryId", env.QueryID),
			slog.String("op", fmt.Sprintf("0x%08x", opcode(env))),
			slog.Any("error", err))
		return false
	}
	return true
}

// step runs one hop. The returned error is reserved for infrastructure
// failures; actor failures are reported through the hop's exit code.
func (r *Router) step(ctx context.Context, env types.Envelope) (Hop, *types.Outcome, error) {
	hop := Hop{Envelope: env, Op: opcode(env)}
	lock := r.locks.GetLock(env.To)
	lock.Lock()
	defer lock.Unlock()

	_, span := r.tracer.Start(ctx, "router.hop", trace.WithAttributes(
		attribute.String("op", fmt.Sprintf("0x%08x", hop.Op)),
		attribute.Bool("bounced", env.Bounced),
	))
	defer span.End()

	start := time.Now()
	tx := r.state.Begin()
	actor, ok, err := r.resolver.Resolve(tx, env.To)
	if err != nil {
		tx.Discard()
		return hop, nil, err
	}
	if !ok {
		tx.Discard()
		// External accounts accept plain value and bounces silently.
		if env.Bounced || env.Body == nil {
			hop.Actor = "account"
			return hop, nil, nil
		}
		hop.Actor = "account"
		hop.ExitCode = coreerrors.CodeBounced
		hop.Error = errNoRecipient.Error()
		return hop, nil, nil
	}
	hop.Actor = actor.Kind()
	span.SetAttributes(attribute.String("actor", hop.Actor))

	out, err := actor.Receive(tx, &env)
	if err == nil {
		err = tx.Commit()
	} else {
		tx.Discard()
	}
	hop.ExitCode = coreerrors.ExitCode(err)
	r.telemetry.ObserveHop(hop.Actor, hop.ExitCode, time.Since(start))
	if err != nil {
		hop.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Info("router: message failed",
			slog.String("actor", hop.Actor),
			slog.String("op", fmt.Sprintf("0x%08x", hop.Op)),
			slog.Uint64("queryId", env.QueryID),
			slog.Int("exitCode", hop.ExitCode),
			slog.Any("error", err))
		return hop, nil, nil
	}
	return hop, out, nil
}

func opcode(env types.Envelope) uint32 {
	if env.Body == nil {
		return 0
	}
	return env.Body.Opcode()
}
