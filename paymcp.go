package paymcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/mcpservice"
	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/provider/x402provider"
	"github.com/paymcp/paymcp-go/sessions"
	"github.com/paymcp/paymcp-go/storage"
	"github.com/paymcp/paymcp-go/storage/memory"
)

// ErrNoSession is returned when a flow needs a session identity (hiding a
// tool for one caller, keying a challenge per session) and neither the
// Session nor the context propagator can supply one.
var ErrNoSession = fmt.Errorf("paymcp: no resolvable session identifier")

// Orchestrator is the payment gate. Gate wraps tool handlers so every
// invocation first passes through a flow strategy; the strategies share the
// orchestrator's store, providers, and visibility state.
type Orchestrator struct {
	log       *slog.Logger
	store     storage.Store
	ownsStore bool
	prop      sessions.Propagator
	container *mcpservice.ToolsContainer

	flow          Flow
	retention     time.Duration
	sweepInterval time.Duration

	providers     map[string]provider.Provider
	providerOrder []string

	vis visibilityState

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	log           *slog.Logger
	store         storage.Store
	prop          sessions.Propagator
	flow          Flow
	retention     time.Duration
	sweepInterval time.Duration
	registry      *provider.Registry
	providers     []provider.Provider
	specs         []providerSpec
	err           error
}

type providerSpec struct {
	name string
	opts map[string]string
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithStore sets the shared state store. Defaults to an in-memory store
// owned (and closed) by the orchestrator.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPropagator overrides how session identifiers are carried on contexts
// when no Session value reaches a handler.
func WithPropagator(p sessions.Propagator) Option {
	return func(o *options) { o.prop = p }
}

// WithFlow pins the flow strategy. Defaults to FlowAuto.
func WithFlow(f Flow) Option {
	return func(o *options) {
		if !f.valid() {
			o.err = fmt.Errorf("paymcp: unknown flow %q", f)
			return
		}
		o.flow = f
	}
}

// WithRetention bounds how long unconfirmed payment state is kept.
// Defaults to 10 minutes.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// WithSweepInterval sets the cadence of the expiry sweep. Defaults to one
// minute; zero or negative disables the background sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithProvider registers a pre-built provider instance under its Name().
func WithProvider(p provider.Provider) Option {
	return func(o *options) { o.providers = append(o.providers, p) }
}

// WithProviderSpec registers a provider declaratively; it is built through
// the registry at construction time and misconfiguration fails New.
func WithProviderSpec(name string, opts map[string]string) Option {
	return func(o *options) { o.specs = append(o.specs, providerSpec{name: name, opts: opts}) }
}

// WithRegistry overrides the provider registry used to resolve declarative
// specs. The default registry has the x402 factory pre-registered.
func WithRegistry(r *provider.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithConfig applies environment-derived settings. Explicit options given
// after it win.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		f := Flow(cfg.Flow)
		if !f.valid() {
			o.err = fmt.Errorf("paymcp: config: unknown flow %q", cfg.Flow)
			return
		}
		o.flow = f
		o.retention = cfg.Retention
		o.sweepInterval = cfg.SweepInterval
	}
}

// New builds an Orchestrator bound to container. The container may be nil
// when the dynamic-tools flow is never used; selecting it explicitly
// without a container is a configuration error.
func New(container *mcpservice.ToolsContainer, opts ...Option) (*Orchestrator, error) {
	o := options{
		log:           slog.Default(),
		prop:          sessions.ContextPropagator{},
		flow:          FlowAuto,
		retention:     10 * time.Minute,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.retention <= 0 {
		return nil, fmt.Errorf("paymcp: retention must be positive")
	}

	orch := &Orchestrator{
		log:           o.log,
		store:         o.store,
		prop:          o.prop,
		container:     container,
		flow:          o.flow,
		retention:     o.retention,
		sweepInterval: o.sweepInterval,
		providers:     make(map[string]provider.Provider),
		done:          make(chan struct{}),
	}
	orch.vis.init()

	if orch.store == nil {
		st, err := memory.New(4096)
		if err != nil {
			return nil, fmt.Errorf("paymcp: default store: %w", err)
		}
		orch.store = st
		orch.ownsStore = true
	}

	reg := o.registry
	if reg == nil {
		reg = provider.NewRegistry()
		_ = reg.Register("x402", x402provider.Factory)
	}
	for _, p := range o.providers {
		if err := provider.Validate(p); err != nil {
			return nil, fmt.Errorf("paymcp: %w", err)
		}
		orch.addProvider(p)
	}
	for _, spec := range o.specs {
		p, err := reg.Build(spec.name, spec.opts)
		if err != nil {
			return nil, fmt.Errorf("paymcp: %w", err)
		}
		orch.addProvider(p)
	}
	if len(orch.providerOrder) == 0 {
		return nil, fmt.Errorf("paymcp: at least one payment provider is required")
	}

	// Flows with hard prerequisites fail here, not on the first call.
	if orch.flow == FlowX402 {
		if _, ok := orch.providers["x402"]; !ok {
			return nil, fmt.Errorf("paymcp: flow %q requires an x402 provider", FlowX402)
		}
	}
	if orch.flow == FlowDynamicTools && orch.container == nil {
		return nil, fmt.Errorf("paymcp: flow %q requires a tools container", FlowDynamicTools)
	}

	if orch.sweepInterval > 0 {
		go orch.sweepLoop()
	}
	return orch, nil
}

func (o *Orchestrator) addProvider(p provider.Provider) {
	name := p.Name()
	if _, exists := o.providers[name]; !exists {
		o.providerOrder = append(o.providerOrder, name)
	}
	o.providers[name] = p
}

// defaultProvider returns the first configured provider. Registration order
// is the operator's preference order.
func (o *Orchestrator) defaultProvider() provider.Provider {
	return o.providers[o.providerOrder[0]]
}

func (o *Orchestrator) providerNamed(name string) provider.Provider {
	if p, ok := o.providers[name]; ok {
		return p
	}
	return o.defaultProvider()
}

// Close stops the background sweeper and, when the orchestrator created its
// own store, closes it. Shared stores passed via WithStore stay open.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.done)
		if o.ownsStore {
			err = o.store.Close()
		}
	})
	return err
}

// Gate wraps def's handler with payment dispatch. The descriptor is
// unchanged; the wrapped handler runs a flow strategy on every call and
// only invokes the original once payment is confirmed.
func (o *Orchestrator) Gate(def mcpservice.StaticTool, price provider.Price) mcpservice.StaticTool {
	g := &gatedTool{
		name:  def.Descriptor.Name,
		desc:  def.Descriptor,
		price: price,
		orig:  def.Handler,
	}
	wrapped := def
	wrapped.Handler = func(ctx context.Context, sess sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		return o.dispatch(ctx, sess, g, req)
	}
	return wrapped
}

// AddTool gates def and registers it with the bound container. Returns
// false when the name is already taken.
func (o *Orchestrator) AddTool(ctx context.Context, def mcpservice.StaticTool, price provider.Price) bool {
	if o.container == nil {
		return false
	}
	return o.container.Add(ctx, o.Gate(def, price))
}

// gatedTool is the per-tool state a strategy needs: the original handler
// and descriptor plus the price to charge.
type gatedTool struct {
	name  string
	desc  mcp.Tool
	price provider.Price
	orig  mcpservice.ToolHandler
}

func (g *gatedTool) chargeDescription() string {
	return fmt.Sprintf("%s (%s)", g.name, g.price)
}

// sessionID resolves the caller's session identity, preferring the Session
// value and falling back to the context propagator.
func (o *Orchestrator) sessionID(ctx context.Context, sess sessions.Session) (string, bool) {
	if sess != nil {
		if id := sess.SessionID(); id != "" {
			return id, true
		}
	}
	return o.prop.CurrentID(ctx)
}

// invokeOriginal replays the captured arguments through the real handler.
// Handler errors and panics are contained: payment already cleared, so the
// caller gets a structured error result instead of a protocol fault.
func (o *Orchestrator) invokeOriginal(ctx context.Context, sess sessions.Session, g *gatedTool, args json.RawMessage) (res *mcp.CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("gated tool handler panicked", slog.String("tool", g.name), slog.Any("panic", r))
			res = resultTechnicalError("tool execution failed")
		}
	}()
	out, err := g.orig(ctx, sess, &mcp.CallToolRequestReceived{Name: g.name, Arguments: args})
	if err != nil {
		o.log.Error("gated tool handler failed", slog.String("tool", g.name), slog.String("err", err.Error()))
		return resultTechnicalError("tool execution failed")
	}
	return out
}
