// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant wires rule tables, stores and controllers into one hub
// serving every enabled copilot surface.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/latency"
	"github.com/jeranaias/copilot-engine/internal/rules"
	"github.com/jeranaias/copilot-engine/internal/session"
	"github.com/jeranaias/copilot-engine/internal/storage"
	"github.com/jeranaias/copilot-engine/internal/tasks"
)

const restoreTimeout = 10 * time.Second

var (
	// ErrUnknownSurface is returned for a surface name the hub does not serve.
	ErrUnknownSurface = errors.New("unknown surface")

	// ErrHubClosed is returned after Shutdown.
	ErrHubClosed = errors.New("assistant hub is shut down")

	// ErrNoSurfaces is returned when configuration enables nothing.
	ErrNoSurfaces = errors.New("no surfaces enabled")
)

// =============================================================================
// SURFACE
// =============================================================================

// Surface is one assistant: its rule table, latency policy, conversation
// store and the controller currently serving it.
type Surface struct {
	Name       string
	Table      *rules.Table
	Policy     latency.Policy
	Store      *storage.Store
	Controller *session.Controller
}

// Title returns the display title, falling back to the name.
func (s *Surface) Title() string {
	if s.Table.Title != "" {
		return s.Table.Title
	}
	return s.Name
}

// =============================================================================
// HUB
// =============================================================================

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock sets the clock used by every surface's scheduler.
func WithClock(c tasks.Clock) Option {
	return func(h *Hub) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithPersister replaces the persister the configuration would open.
// Pass nil for memory-only operation. The hub closes it on Shutdown.
func WithPersister(p storage.Persister) Option {
	return func(h *Hub) {
		h.persister = p
		h.persisterSet = true
	}
}

// Hub owns every surface and the shared persister.
type Hub struct {
	cfg          *config.Config
	catalog      *rules.Catalog
	persister    storage.Persister
	persisterSet bool
	clock        tasks.Clock
	logger       *zap.Logger

	mu       sync.RWMutex
	surfaces map[string]*Surface
	closed   bool
}

// NewHub builds one surface per catalog table enabled in cfg. Persisted
// conversations are restored behind each surface's fresh conversation.
func NewHub(cfg *config.Config, catalog *rules.Catalog, opts ...Option) (*Hub, error) {
	h := &Hub{
		cfg:      cfg,
		catalog:  catalog,
		clock:    tasks.RealClock{},
		logger:   zap.NewNop(),
		surfaces: make(map[string]*Surface),
	}
	for _, opt := range opts {
		opt(h)
	}

	for _, name := range cfg.Engine.SurfacesEnabled {
		if _, ok := catalog.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, name)
		}
	}

	if !h.persisterSet {
		p, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.MaxConversations)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		h.persister = p
	}

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	for _, name := range catalog.Names() {
		if !cfg.SurfaceEnabled(name) {
			continue
		}
		table, _ := catalog.Get(name)
		sf := h.buildSurface(table)

		restored, err := sf.Store.Restore(ctx)
		if err != nil {
			h.logger.Warn("failed to restore conversations",
				zap.String("surface", name), zap.Error(err))
		} else if restored > 0 {
			h.logger.Info("restored conversations",
				zap.String("surface", name), zap.Int("count", restored))
		}
		h.surfaces[name] = sf
	}

	if len(h.surfaces) == 0 {
		h.closePersister()
		return nil, ErrNoSurfaces
	}

	h.logger.Debug("assistant hub ready", zap.Strings("surfaces", h.Surfaces()))
	return h, nil
}

func (h *Hub) buildSurface(table *rules.Table) *Surface {
	policy := h.cfg.PolicyFor(table.Surface, table.Policy())

	var storeOpts []storage.StoreOption
	storeOpts = append(storeOpts,
		storage.WithLogger(h.logger),
		storage.WithTitleMaxRunes(h.cfg.Engine.TitleMaxRunes))
	if h.persister != nil {
		storeOpts = append(storeOpts, storage.WithPersister(h.persister))
	}
	store := storage.NewStore(table.Surface, table.Greeting, storeOpts...)

	sf := &Surface{
		Name:   table.Surface,
		Table:  table,
		Policy: policy,
		Store:  store,
	}
	sf.Controller = h.newController(sf)
	return sf
}

func (h *Hub) newController(sf *Surface) *session.Controller {
	scfg := session.DefaultConfig()
	scfg.SerializeReplies = h.cfg.Engine.SerializeReplies

	sched := tasks.NewScheduler(
		tasks.WithClock(h.clock),
		tasks.WithLogger(h.logger.With(zap.String("surface", sf.Name))))

	return session.New(sf.Table, sf.Store,
		session.WithConfig(scfg),
		session.WithPolicy(sf.Policy),
		session.WithScheduler(sched),
		session.WithLogger(h.logger))
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Config returns the configuration the hub was built from.
func (h *Hub) Config() *config.Config { return h.cfg }

// Persister returns the shared persister, or nil when memory only.
func (h *Hub) Persister() storage.Persister { return h.persister }

// Surface returns a snapshot of the named surface.
func (h *Hub) Surface(name string) (*Surface, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	sf, ok := h.surfaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, name)
	}
	out := *sf
	return &out, nil
}

// Surfaces returns the served surface names, sorted.
func (h *Hub) Surfaces() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.surfaces))
	for name := range h.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultSurface returns the configured default surface if served,
// otherwise the first served surface.
func (h *Hub) DefaultSurface() string {
	h.mu.RLock()
	_, ok := h.surfaces[h.cfg.Engine.DefaultSurface]
	h.mu.RUnlock()
	if ok {
		return h.cfg.Engine.DefaultSurface
	}
	names := h.Surfaces()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open returns the named surface, replacing its controller with a fresh one
// over the same store if it was closed.
func (h *Hub) Open(name string) (*Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	sf, ok := h.surfaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, name)
	}
	if sf.Controller.Closed() {
		sf.Controller = h.newController(sf)
		h.logger.Debug("surface reopened", zap.String("surface", name))
	}
	out := *sf
	return &out, nil
}

// Close cancels the named surface's pending replies. Its conversations stay
// in memory and the surface can be reopened with Open.
func (h *Hub) Close(name string) error {
	h.mu.RLock()
	sf, ok := h.surfaces[name]
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSurface, name)
	}
	sf.Controller.Close()
	return nil
}

// Shutdown closes every surface and the persister. It is idempotent.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	controllers := make([]*session.Controller, 0, len(h.surfaces))
	for _, sf := range h.surfaces {
		controllers = append(controllers, sf.Controller)
	}
	h.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
	h.closePersister()
	h.logger.Debug("assistant hub shut down")
}

func (h *Hub) closePersister() {
	if h.persister == nil {
		return
	}
	if err := h.persister.Close(); err != nil {
		h.logger.Warn("failed to close storage", zap.Error(err))
	}
}
