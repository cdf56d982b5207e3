package stakingd

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftstake/core"
	"nftstake/core/events"
	"nftstake/core/router"
	"nftstake/core/types"
	"nftstake/gateway/middleware"
	"nftstake/native/bank"
	"nftstake/native/nft"
	"nftstake/native/staking"
	"nftstake/observability/metrics"
)

// Backend is the staking node surface used by the HTTP layer.
type Backend interface {
	Config() (staking.Config, error)
	Submit(ctx context.Context, from, to [20]byte, value *big.Int, queryID uint64, body types.Message, bounce bool) (*router.Trace, error)
	Stake(ctx context.Context, owner, item [20]byte, lock staking.LockOption, value *big.Int, queryID uint64) (*router.Trace, error)
	Claim(ctx context.Context, staker, item [20]byte, returnItem bool, fee *big.Int, queryID uint64) (*router.Trace, error)
	FundReserve(ctx context.Context, sender [20]byte, amount *big.Int, queryID uint64) (*router.Trace, error)
	MintItem(item, owner [20]byte) error
	MintTokens(caller, to [20]byte, amount *big.Int) error

	HelperAddressOf(item [20]byte) ([20]byte, error)
	Snapshot() (*staking.Snapshot, error)
	EstimatedReward(item [20]byte, elapsed int64) (*staking.Estimate, error)
	ItemsStakedBy(user [20]byte) ([][20]byte, error)
	Helper(item [20]byte) (*staking.Helper, error)
	OwnerOf(item [20]byte) ([20]byte, error)
	ItemsOwnedBy(owner [20]byte) ([][20]byte, error)
	Balance(asset bank.Asset, addr [20]byte) (*big.Int, error)
}

// ServerOptions wires the optional collaborators of the API server.
type ServerOptions struct {
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Audit         *AuditStore
	Broadcaster   *events.Broadcaster
	CacheSize     int
	CacheTTL      time.Duration
	EventBuffer   int
	Logger        *slog.Logger
}

// Server exposes the staking node over HTTP.
type Server struct {
	backend     Backend
	auth        *middleware.Authenticator
	limiter     *middleware.RateLimiter
	obs         *middleware.Observability
	audit       *AuditStore
	broadcaster *events.Broadcaster
	cache       *estimateCache
	validate    *Validator
	eventBuffer int
	logger      *slog.Logger
	router      chi.Router
}

func NewServer(backend Backend, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Auth == nil {
		opts.Auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	if opts.Observability == nil {
		opts.Observability = middleware.NewObservability(middleware.ObservabilityConfig{}, logger)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	s := &Server{
		backend:     backend,
		auth:        opts.Auth,
		limiter:     opts.RateLimiter,
		obs:         opts.Observability,
		audit:       opts.Audit,
		broadcaster: opts.Broadcaster,
		cache:       newEstimateCache(opts.CacheSize, opts.CacheTTL),
		validate:    NewValidator(),
		eventBuffer: opts.EventBuffer,
		logger:      logger,
	}
	s.router = s.routes(opts.CORS)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(cors middleware.CORSConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cors))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.obs.Middleware("events")).Get("/v1/events/ws", s.handleEventsWS)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(q chi.Router) {
			q.Use(s.limit("queries"))
			q.With(s.obs.Middleware("master")).Get("/master", s.handleSnapshot)
			q.With(s.obs.Middleware("items.list")).Get("/items", s.handleItems)
			q.With(s.obs.Middleware("items.staked")).Get("/items/staked", s.handleStakedItems)
			q.With(s.obs.Middleware("items.helper")).Get("/items/{item}/helper", s.handleHelper)
			q.With(s.obs.Middleware("items.estimate")).Get("/items/{item}/estimate", s.handleEstimate)
			q.With(s.obs.Middleware("items.owner")).Get("/items/{item}/owner", s.handleOwner)
			q.With(s.obs.Middleware("users.staked")).Get("/users/{user}/staked", s.handleUserStaked)
			q.With(s.obs.Middleware("accounts.balances")).Get("/accounts/{account}/balances", s.handleBalances)
			q.With(s.obs.Middleware("accounts.items")).Get("/accounts/{account}/items", s.handleAccountItems)
		})

		v1.Group(func(m chi.Router) {
			m.Use(s.auth.Middleware())
			m.Use(s.limit("mutations"))
			m.Use(s.idempotent)
			m.With(s.obs.Middleware("stakes")).Post("/stakes", s.handleStake)
			m.With(s.obs.Middleware("claims")).Post("/claims", s.handleClaim)
			m.With(s.obs.Middleware("reserve.deposit")).Post("/reserve/deposits", s.handleDeposit)
			m.With(s.obs.Middleware("messages")).Post("/messages", s.handleMessage)
		})

		v1.Route("/admin", func(a chi.Router) {
			a.Use(s.auth.Middleware(middleware.ScopeAdmin))
			a.Use(s.limit("admin"))
			a.With(s.obs.Middleware("admin.audit")).Get("/audit", s.handleAudit)
			a.Group(func(m chi.Router) {
				m.Use(s.idempotent)
				m.With(s.obs.Middleware("admin.withdraw")).Post("/withdraw", s.handleWithdraw)
				m.With(s.obs.Middleware("admin.items.add")).Post("/items", s.handleAddItems)
				m.With(s.obs.Middleware("admin.items.remove")).Post("/items/remove", s.handleRemoveItems)
				m.With(s.obs.Middleware("admin.rarity.add")).Post("/rarity", s.handleAddRarity)
				m.With(s.obs.Middleware("admin.rarity.remove")).Post("/rarity/remove", s.handleRemoveRarity)
				m.With(s.obs.Middleware("admin.valid_until")).Post("/valid-until", s.handleValidUntil)
				m.With(s.obs.Middleware("admin.mint.item")).Post("/mint/items", s.handleMintItem)
				m.With(s.obs.Middleware("admin.mint.tokens")).Post("/mint/tokens", s.handleMintTokens)
			})
		})
	})
	return r
}

func (s *Server) limit(group string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limiter.Middleware(group)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.Config(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// idempotent replays stored responses for reused Idempotency-Key headers,
// records every mutating request in the audit log and invalidates the read
// cache once the request completed.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		principal, _ := middleware.PrincipalFrom(r.Context())
		caller := ""
		if principal != nil {
			caller = accountString(principal.Address)
		}
		key := r.Header.Get(middleware.IdempotencyHeader)
		sum := sha256.Sum256(append([]byte(r.Method+" "+r.URL.Path+"\n"), body...))
		hash := hex.EncodeToString(sum[:])

		if s.audit != nil && key != "" {
			stored, err := s.audit.LookupIdempotency(r.Context(), caller, key, hash)
			if errors.Is(err, ErrIdempotencyMismatch) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			if err != nil {
				s.logger.Error("idempotency lookup failed", slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "idempotency store unavailable")
				return
			}
			if stored != nil {
				metrics.API().RecordReplay()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.cache.Clear()

		if s.audit == nil {
			return
		}
		ctx := context.WithoutCancel(r.Context())
		if key != "" && rec.status < http.StatusInternalServerError {
			if err := s.audit.SaveIdempotency(ctx, caller, key, hash, rec.status, rec.buf.Bytes()); err != nil {
				s.logger.Error("idempotency save failed", slog.Any("error", err))
			}
		}
		entry := AuditEntry{
			Caller:         caller,
			RequestID:      middleware.RequestIDFrom(r.Context()),
			Method:         r.Method,
			Path:           r.URL.Path,
			RequestBody:    body,
			ResponseStatus: rec.status,
			ExitCode:       rec.exitCode,
			Timestamp:      time.Now(),
		}
		if err := s.audit.InsertAuditLog(ctx, entry); err != nil {
			s.logger.Error("audit insert failed", slog.Any("error", err))
		}
	})
}

type captureWriter struct {
	http.ResponseWriter
	status   int
	exitCode int
	buf      bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeReceipt reports a delivered trace. Failed chains map their exit code
// to an HTTP status; the receipt body is always included.
func writeReceipt(w http.ResponseWriter, trace *router.Trace) {
	view := receiptFrom(trace)
	if c, ok := w.(*captureWriter); ok {
		c.exitCode = view.ExitCode
	}
	writeJSON(w, statusForExitCode(view.ExitCode), view)
}

func statusForExitCode(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case staking.CodeUnauthorized:
		return http.StatusForbidden
	case staking.CodeNotStaked:
		return http.StatusNotFound
	case staking.CodeInsufficientFee:
		return http.StatusPaymentRequired
	case staking.CodeLockNotElapsed, staking.CodeClaimPending, staking.CodeReserveDepleted, staking.CodeAlreadyStaked:
		return http.StatusConflict
	case staking.ErrInvalidMessage.ExitCode(), staking.ErrUnknownOp.ExitCode():
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeIngressError maps errors raised before delivery started.
func writeIngressError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialised):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrNoHelper), errors.Is(err, nft.ErrItemNotFound), errors.Is(err, staking.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, nft.ErrNotOwner), errors.Is(err, bank.ErrMintUnauthorized), errors.Is(err, core.ErrReservedSender):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, nft.ErrItemExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bank.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, bank.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, router.ErrHopLimit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
