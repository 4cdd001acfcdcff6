package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/horizonsync/authcore/jwt"
	"github.com/horizonsync/authcore/password"
)

// Builder assembles an Engine. Only the store is mandatory; every
// other collaborator has a working default. Builders are single-use.
type Builder struct {
	cfg     Config
	cfgSet  bool
	store   Store
	roles   RoleResolver
	limiter RateLimiter
	sink    AuditSink
	clock   func() time.Time
}

func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the whole configuration. Callers usually start
// from DefaultConfig and fill in key material.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithStore sets the persistence backend.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithRoleResolver sets the source of org, role, and permission
// claims. Without one, tokens are minted with an empty assignment.
func (b *Builder) WithRoleResolver(r RoleResolver) *Builder {
	b.roles = r
	return b
}

// WithRateLimiter enables login and refresh throttling.
func (b *Builder) WithRateLimiter(l RateLimiter) *Builder {
	b.limiter = l
	return b
}

// WithAuditSink sets where audit events go. Without one they are
// discarded.
func (b *Builder) WithAuditSink(s AuditSink) *Builder {
	b.sink = s
	return b
}

// WithClock replaces the engine's notion of now, for tests and
// deterministic replays. The same clock feeds token validation, so
// advancing it expires tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration, wires every component, and
// starts the audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	cfg := DefaultConfig()
	if b.cfgSet {
		cfg = cloneConfig(b.cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("authcore: builder requires a store")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher, err := password.NewBcrypt(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("authcore: password hasher: %w", err)
	}

	jwtCfg := cfg.JWT
	jwtCfg.TimeFunc = clock
	tokens, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("authcore: token manager: %w", err)
	}

	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	e := &Engine{
		cfg:     cfg,
		store:   b.store,
		roles:   b.roles,
		limiter: b.limiter,
		tokens:  tokens,
		hasher:  hasher,
		totp:    newTOTPManager(cfg.MFA),
		audit:   newAuditDispatcher(sink, cfg.Audit),
		now:     clock,
	}
	if cfg.Metrics.Enabled {
		e.metrics = newMetrics()
	}
	return e, nil
}
