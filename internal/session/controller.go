// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/latency"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/rules"
	"github.com/jeranaias/copilot-engine/internal/storage"
	"github.com/jeranaias/copilot-engine/internal/tasks"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds controller settings.
type Config struct {
	// SerializeReplies chains replies per conversation (default: true)
	SerializeReplies bool

	// SubscriberBuffer is the channel capacity per subscriber (default: 64)
	SubscriberBuffer int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		SerializeReplies: true,
		SubscriberBuffer: 64,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		if cfg.SubscriberBuffer <= 0 {
			cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
		}
		c.cfg = cfg
	}
}

// WithPolicy overrides the table's latency policy.
func WithPolicy(p latency.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithScheduler sets the scheduler. The controller takes ownership and
// closes it in Close.
func WithScheduler(s *tasks.Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the entry point for one assistant surface.
type Controller struct {
	table     *rules.Table
	store     *storage.Store
	policy    latency.Policy
	scheduler *tasks.Scheduler
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string][]*reply // conversation ID -> replies not yet appended
	subs    map[int]chan Event
	nextSub int
}

// reply is one scheduled assistant response.
type reply struct {
	template rules.ResponseTemplate
	rule     string
	delay    time.Duration
	task     *tasks.Task
}

// New creates a controller for table over store.
func New(table *rules.Table, store *storage.Store, opts ...Option) *Controller {
	c := &Controller{
		table:   table,
		store:   store,
		policy:  table.Policy(),
		cfg:     DefaultConfig(),
		logger:  zap.NewNop(),
		pending: make(map[string][]*reply),
		subs:    make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = tasks.NewScheduler(tasks.WithLogger(c.logger))
	}
	c.logger = c.logger.With(zap.String("surface", table.Surface))
	return c
}

// Surface returns the surface name.
func (c *Controller) Surface() string { return c.table.Surface }

// Table returns the rule table.
func (c *Controller) Table() *rules.Table { return c.table }

// Store returns the conversation store.
func (c *Controller) Store() *storage.Store { return c.store }

// Policy returns the latency policy in effect.
func (c *Controller) Policy() latency.Policy { return c.policy }

// Scheduler returns the reply scheduler.
func (c *Controller) Scheduler() *tasks.Scheduler { return c.scheduler }

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends raw to the active conversation. See SubmitTo.
func (c *Controller) Submit(ctx context.Context, raw string) (*model.Turn, bool) {
	return c.SubmitTo(ctx, c.store.ActiveID(), raw)
}

// SubmitTo appends raw as a user turn to convID and schedules the matching
// reply. Blank input, an unknown conversation, a closed controller or a
// cancelled ctx leave everything unchanged and return false. The returned
// turn is a copy of the appended user turn.
func (c *Controller) SubmitTo(ctx context.Context, convID, raw string) (*model.Turn, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || ctx.Err() != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}

	user := model.NewUserTurn(text)
	if _, err := c.store.Append(convID, user); err != nil {
		c.logger.Debug("submit to unknown conversation", zap.String("conversation_id", convID))
		return nil, false
	}
	c.publishLocked(Event{Kind: EventTurnAppended, Surface: c.table.Surface, ConversationID: convID, Turn: user})

	rule, matched := c.table.MatchRule(text)
	tmpl := c.table.Fallback
	if matched {
		tmpl = rule.Response
	}
	r := &reply{
		template: tmpl,
		rule:     rule.Name,
		delay:    c.policy.Delay(tmpl.Content),
	}

	queue := c.pending[convID]
	c.pending[convID] = append(queue, r)
	if !c.cfg.SerializeReplies || len(queue) == 0 {
		c.scheduleLocked(convID, r)
	}

	c.logger.Debug("reply scheduled",
		zap.String("conversation_id", convID),
		zap.Bool("matched", matched),
		zap.String("rule", r.rule),
		zap.Duration("delay", r.delay),
		zap.Int("queued", len(c.pending[convID])))
	c.publishLocked(Event{Kind: EventReplyPending, Surface: c.table.Surface, ConversationID: convID})

	return user.Clone(), true
}

func (c *Controller) scheduleLocked(convID string, r *reply) {
	r.task = c.scheduler.Schedule(convID, r.delay, func(ctx context.Context) {
		c.deliver(ctx, convID, r)
	})
}

// deliver is the timer callback for r.
func (c *Controller) deliver(ctx context.Context, convID string, r *reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || ctx.Err() != nil {
		return
	}
	if !c.removePendingLocked(convID, r) {
		return
	}

	turn := r.template.NewTurn()
	if _, err := c.store.Append(convID, turn); err != nil {
		// The conversation was deleted while the reply was pending.
		c.logger.Debug("reply dropped", zap.String("conversation_id", convID), zap.Error(err))
		c.dropLocked(convID)
		c.publishLocked(Event{Kind: EventReplyDropped, Surface: c.table.Surface, ConversationID: convID})
		return
	}
	c.publishLocked(Event{Kind: EventTurnAppended, Surface: c.table.Surface, ConversationID: convID, Turn: turn})

	if c.cfg.SerializeReplies {
		if queue := c.pending[convID]; len(queue) > 0 {
			c.scheduleLocked(convID, queue[0])
		}
	}
}

func (c *Controller) removePendingLocked(convID string, r *reply) bool {
	queue := c.pending[convID]
	for i, q := range queue {
		if q == r {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(c.pending, convID)
			} else {
				c.pending[convID] = queue
			}
			return true
		}
	}
	return false
}

// dropLocked forgets every pending reply for convID and cancels its timers.
func (c *Controller) dropLocked(convID string) {
	delete(c.pending, convID)
	c.scheduler.Cancel(convID)
}

// =============================================================================
// STATE
// =============================================================================

// Pending reports whether convID has a reply that has not been appended yet.
func (c *Controller) Pending(convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[convID]) > 0
}

// IsPending reports whether the active conversation awaits a reply.
func (c *Controller) IsPending() bool {
	return c.Pending(c.store.ActiveID())
}

// Suggestions returns the surface's suggested prompts while the active
// conversation holds only its greeting and no reply is pending. Otherwise
// it returns nil.
func (c *Controller) Suggestions() []string {
	return c.SuggestionsFor(c.store.ActiveID())
}

// SuggestionsFor is Suggestions for a specific conversation.
func (c *Controller) SuggestionsFor(convID string) []string {
	conv, err := c.store.Get(convID)
	if err != nil || conv.TurnCount() != 1 || c.Pending(convID) {
		return nil
	}
	return c.table.SuggestionList()
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// NewConversation creates a conversation and makes it active.
func (c *Controller) NewConversation() *model.Conversation {
	return c.store.Create()
}

// Select makes convID active.
func (c *Controller) Select(convID string) error {
	return c.store.Select(convID)
}

// Delete removes convID and cancels its pending replies. It returns the
// store's refusal error, if any.
func (c *Controller) Delete(convID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteConversation(convID); err != nil {
		return err
	}
	c.dropLocked(convID)
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Wait blocks until every scheduled reply has been delivered or cancelled.
func (c *Controller) Wait() {
	c.scheduler.Wait()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels every pending reply, closes subscriber channels and waits
// for running callbacks. Later Submits are ignored. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[string][]*reply)
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.scheduler.Close()
	c.logger.Debug("controller closed")
}
