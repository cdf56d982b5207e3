package router

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "nftstake/core/errors"
	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/core/types"
	"nftstake/storage"
)

type ping struct{ N int }

func (*ping) Opcode() uint32 { return 0x01 }

var errBoom = coreerrors.New(900, "test: boom")

type scriptedActor struct {
	kind    string
	receive func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error)
}

func (a *scriptedActor) Kind() string { return a.kind }

func (a *scriptedActor) Receive(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
	return a.receive(tx, env)
}

type mapResolver map[[20]byte]Actor

func (m mapResolver) Resolve(_ *state.Tx, addr [20]byte) (Actor, bool, error) {
	a, ok := m[addr]
	return a, ok, nil
}

// brokenResolver fails to resolve one address, as a storage read error would.
type brokenResolver struct {
	mapResolver
	broken [20]byte
}

func (b brokenResolver) Resolve(tx *state.Tx, addr [20]byte) (Actor, bool, error) {
	if addr == b.broken {
		return nil, false, errors.New("resolver: read failed")
	}
	return b.mapResolver.Resolve(tx, addr)
}

type recordingExecutor struct {
	mu      sync.Mutex
	effects []types.Effect
	moves   []string
	fail    bool
}

func (e *recordingExecutor) Execute(_ context.Context, effect types.Effect) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return errors.New("executor down")
	}
	e.effects = append(e.effects, effect)
	return nil
}

func (e *recordingExecutor) MoveValue(_ context.Context, from, to [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moves = append(e.moves, string([]byte{from[0]})+">"+string([]byte{to[0]})+":"+amount.String())
	return nil
}

type captureEmitter struct{ seen []string }

func (c *captureEmitter) Emit(evt events.Event) { c.seen = append(c.seen, evt.EventType()) }

var (
	userAddr  = [20]byte{'u'}
	firstAddr = [20]byte{'a'}
	otherAddr = [20]byte{'b'}
)

func newTestRouter(t *testing.T, resolver Resolver) (*Router, *state.Manager, *recordingExecutor) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	exec := &recordingExecutor{}
	r := New(mgr, resolver, exec)
	r.SetMetrics(nil)
	return r, mgr, exec
}

func stored(t *testing.T, mgr *state.Manager, key string) bool {
	t.Helper()
	var found bool
	require.NoError(t, mgr.View(func(tx *state.Tx) error {
		var err error
		found, err = tx.KVGet([]byte(key), nil)
		return err
	}))
	return found
}

func TestDeliverCommitsAndCascades(t *testing.T) {
	resolver := mapResolver{
		firstAddr: &scriptedActor{kind: "first", receive: func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
			require.NoError(t, tx.KVPut([]byte("first"), uint64(1)))
			out := &types.Outcome{}
			out.Send(env.Derive(otherAddr, &ping{N: 2}, false))
			out.Apply(types.TokenTransfer{From: firstAddr, To: userAddr, Amount: big.NewInt(5)})
			out.Emit(&types.Event{Type: "test.first"})
			return out, nil
		}},
		otherAddr: &scriptedActor{kind: "other", receive: func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
			require.Equal(t, int64(42), env.Now)
			require.Equal(t, uint64(7), env.QueryID)
			require.NoError(t, tx.KVPut([]byte("other"), uint64(1)))
			return &types.Outcome{}, nil
		}},
	}
	r, mgr, exec := newTestRouter(t, resolver)
	emitter := &captureEmitter{}
	r.SetEmitter(emitter)

	tr, err := r.Deliver(context.Background(), types.Envelope{QueryID: 7, From: userAddr, To: firstAddr, Now: 42, Body: &ping{N: 1}})
	require.NoError(t, err)
	require.Len(t, tr.Hops, 2)
	require.Equal(t, coreerrors.CodeOK, tr.ExitCode())
	require.Equal(t, "other", tr.Hops[1].Actor)
	require.True(t, stored(t, mgr, "first"))
	require.True(t, stored(t, mgr, "other"))
	require.Len(t, exec.effects, 1)
	require.Equal(t, []string{"test.first"}, emitter.seen)
}

func TestFailedHopDiscardsWritesAndBounces(t *testing.T) {
	var bounced *types.Envelope
	resolver := mapResolver{
		firstAddr: &scriptedActor{kind: "first", receive: func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
			if env.Bounced {
				copied := *env
				bounced = &copied
				return &types.Outcome{}, nil
			}
			out := &types.Outcome{}
			relay := env.Derive(otherAddr, &ping{N: 2}, true)
			relay.Value = big.NewInt(9)
			out.Send(relay)
			return out, nil
		}},
		otherAddr: &scriptedActor{kind: "other", receive: func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
			require.NoError(t, tx.KVPut([]byte("partial"), uint64(1)))
			return nil, coreerrors.Wrap(errBoom, "no reserve")
		}},
	}
	r, mgr, exec := newTestRouter(t, resolver)

	tr, err := r.Deliver(context.Background(), types.Envelope{QueryID: 3, From: userAddr, To: firstAddr, Now: 1, Body: &ping{}})
	require.NoError(t, err)
	require.Len(t, tr.Hops, 3)
	hop, failed := tr.Failed()
	require.True(t, failed)
	require.Equal(t, 900, hop.ExitCode)
	require.Contains(t, hop.Error, "no reserve")
	require.False(t, stored(t, mgr, "partial"))

	require.NotNil(t, bounced)
	require.Equal(t, otherAddr, bounced.From)
	require.Equal(t, "9", bounced.Value.String())
	require.Equal(t, []string{"a>b:9", "b>a:9"}, exec.moves)
}

func TestUncodedErrorsMapToBounced(t *testing.T) {
	resolver := mapResolver{
		firstAddr: &scriptedActor{kind: "first", receive: func(*state.Tx, *types.Envelope) (*types.Outcome, error) {
			return nil, errors.New("plain")
		}},
	}
	r, _, _ := newTestRouter(t, resolver)
	tr, err := r.Deliver(context.Background(), types.Envelope{From: userAddr, To: firstAddr, Body: &ping{}})
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeBounced, tr.ExitCode())
}

func TestEffectFailureDoesNotUndoCommit(t *testing.T) {
	resolver := mapResolver{
		firstAddr: &scriptedActor{kind: "first", receive: func(tx *state.Tx, _ *types.Envelope) (*types.Outcome, error) {
			require.NoError(t, tx.KVPut([]byte("kept"), uint64(1)))
			out := &types.Outcome{}
			out.Apply(types.ItemTransfer{})
			return out, nil
		}},
	}
	r, mgr, exec := newTestRouter(t, resolver)
	exec.fail = true
	tr, err := r.Deliver(context.Background(), types.Envelope{From: userAddr, To: firstAddr, Body: &ping{}})
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeOK, tr.ExitCode())
	require.True(t, stored(t, mgr, "kept"))
}

func TestHopLimit(t *testing.T) {
	resolver := mapResolver{}
	bouncer := func(to [20]byte) Actor {
		return &scriptedActor{kind: "loop", receive: func(_ *state.Tx, env *types.Envelope) (*types.Outcome, error) {
			out := &types.Outcome{}
			out.Send(env.Derive(to, &ping{}, false))
			return out, nil
		}}
	}
	resolver[firstAddr] = bouncer(otherAddr)
	resolver[otherAddr] = bouncer(firstAddr)
	r, _, _ := newTestRouter(t, resolver)
	r.SetMaxHops(5)
	tr, err := r.Deliver(context.Background(), types.Envelope{From: userAddr, To: firstAddr, Body: &ping{}})
	require.ErrorIs(t, err, ErrHopLimit)
	require.Len(t, tr.Hops, 5)
}

// relayingActor marks a request in flight, sends it on as a bounceable
// message and clears the mark when the message bounces.
func relayingActor(t *testing.T, to [20]byte) Actor {
	return &scriptedActor{kind: "relay", receive: func(tx *state.Tx, env *types.Envelope) (*types.Outcome, error) {
		if env.Bounced {
			require.NoError(t, tx.KVDelete([]byte("pending")))
			return &types.Outcome{}, nil
		}
		require.NoError(t, tx.KVPut([]byte("pending"), uint64(1)))
		out := &types.Outcome{}
		msg := env.Derive(to, &ping{N: 2}, true)
		msg.Value = big.NewInt(4)
		out.Send(msg)
		return out, nil
	}}
}

func TestResolverErrorBouncesPendingMessages(t *testing.T) {
	resolver := brokenResolver{mapResolver: mapResolver{}, broken: otherAddr}
	resolver.mapResolver[firstAddr] = relayingActor(t, otherAddr)
	r, mgr, exec := newTestRouter(t, resolver)

	tr, err := r.Deliver(context.Background(), types.Envelope{From: userAddr, To: firstAddr, Body: &ping{}})
	require.Error(t, err)
	require.Len(t, tr.Hops, 2)
	require.True(t, tr.Hops[1].Envelope.Bounced)
	require.Equal(t, firstAddr, tr.Hops[1].Envelope.To)
	require.False(t, stored(t, mgr, "pending"))
	require.Equal(t, []string{"a>b:4", "b>a:4"}, exec.moves)
}

func TestHopLimitBouncesPendingMessages(t *testing.T) {
	reached := false
	resolver := mapResolver{
		firstAddr: relayingActor(t, otherAddr),
		otherAddr: &scriptedActor{kind: "other", receive: func(*state.Tx, *types.Envelope) (*types.Outcome, error) {
			reached = true
			return &types.Outcome{}, nil
		}},
	}
	r, mgr, _ := newTestRouter(t, resolver)
	r.SetMaxHops(1)

	tr, err := r.Deliver(context.Background(), types.Envelope{From: userAddr, To: firstAddr, Body: &ping{}})
	require.ErrorIs(t, err, ErrHopLimit)
	require.False(t, reached)
	require.Len(t, tr.Hops, 2)
	require.True(t, tr.Hops[1].Envelope.Bounced)
	require.False(t, stored(t, mgr, "pending"))
}

func TestMessageToAccountWithoutActor(t *testing.T) {
	r, _, _ := newTestRouter(t, mapResolver{})
	tr, err := r.Deliver(context.Background(), types.Envelope{From: firstAddr, To: userAddr, Body: &ping{}})
	require.NoError(t, err)
	require.Equal(t, coreerrors.CodeBounced, tr.ExitCode())
}

func TestLockManagerReturnsSameMutex(t *testing.T) {
	lm := NewLockManager()
	require.Same(t, lm.GetLock(firstAddr), lm.GetLock(firstAddr))
	require.NotSame(t, lm.GetLock(firstAddr), lm.GetLock(otherAddr))
}
