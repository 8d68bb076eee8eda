// Package conversation drives the chat transcript: optimistic sends, lazy
// conversation creation, persistence of each turn and history replay.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cortex/internal/client/gateway"
	"cortex/internal/client/inference"
)

const (
	RoleUser   = "user"
	RoleSystem = "system"

	// ChatErrorText is the banner shown when a chat turn fails.
	ChatErrorText = "Unable to connect to Cortex Neural Engine. Check backend."

	GreetingID   = "m1"
	GreetingText = "Cortex Enterprise Engine initialized. Secure vector tunnel established. All queries are encrypted at rest."

	titleRunes = 30
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already in flight")
)

type Phase int

const (
	PhaseNoConversation Phase = iota
	PhaseCreating
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseActive:
		return "active"
	default:
		return "none"
	}
}

type Message struct {
	ID             string
	ConversationID uint
	Role           string
	Content        string
	Timestamp      time.Time
	Sources        []string
	// Animate is set only on a reply received in this session.
	Animate bool
	// Demo marks replies served by the inference client's demo fallback.
	Demo bool
}

type Inference interface {
	Chat(ctx context.Context, prompt string) (*inference.ChatResult, error)
}

// Store is the persistence gateway as seen by the controller.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*gateway.Conversation, error)
	ListConversations(ctx context.Context) ([]gateway.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint) ([]gateway.Message, error)
	AppendMessage(ctx context.Context, msg gateway.NewMessage) error
	RecordAudit(ctx context.Context, action, details string) error
}

type Identity interface {
	SignedIn() bool
}

// Instructions yields the stored persona read at send time.
type Instructions interface {
	Persona() (string, bool)
}

type Options struct {
	Inference    Inference
	Store        Store
	Identity     Identity
	Instructions Instructions
	Logger       *log.Logger
	Now          func() time.Time
	NewID        func() string
}

type Controller struct {
	inference    Inference
	store        Store
	identity     Identity
	instructions Instructions
	logger       *log.Logger
	now          func() time.Time
	newID        func() string

	mu              sync.Mutex
	messages        []Message
	phase           Phase
	conversationID  uint
	busy            bool
	err             string
	draft           string
	historyOpen     bool
	history         []gateway.Conversation
	persistFailures int
	// generation changes whenever the transcript is replaced, so replies to
	// turns started before the switch are dropped.
	generation int
}

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	c := &Controller{
		inference:    opts.Inference,
		store:        opts.Store,
		identity:     opts.Identity,
		instructions: opts.Instructions,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	c.messages = c.initialMessages()
	return c
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	Messages       []Message
	Phase          Phase
	ConversationID uint
	Busy           bool
	Error          string
	Draft          string
	HistoryOpen    bool
	History        []gateway.Conversation
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.messages))
	for i, m := range c.messages {
		m.Sources = append([]string(nil), m.Sources...)
		msgs[i] = m
	}
	return Snapshot{
		Messages:       msgs,
		Phase:          c.phase,
		ConversationID: c.conversationID,
		Busy:           c.busy,
		Error:          c.err,
		Draft:          c.draft,
		HistoryOpen:    c.historyOpen,
		History:        append([]gateway.Conversation(nil), c.history...),
	}
}

func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// PersistFailures counts gateway writes that failed during chat turns.
func (c *Controller) PersistFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistFailures
}

// Turn is a send that has been applied locally and awaits Complete.
type Turn struct {
	text       string
	prompt     string
	userID     string
	generation int
}

func (t *Turn) Prompt() string { return t.prompt }

// SendMessage runs a whole chat turn. Blank text is a no-op.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	turn, err := c.Begin(text)
	if errors.Is(err, ErrEmptyMessage) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Complete(ctx, turn)
}

// Begin applies the optimistic half of a send: the user message is appended,
// the draft cleared and busy raised. No network call happens here.
func (c *Controller) Begin(text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	prompt := text
	if c.instructions != nil {
		if persona, ok := c.instructions.Persona(); ok {
			prompt = fmt.Sprintf("System: %s\nUser: %s", persona, text)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, ErrBusy
	}
	turn := &Turn{text: text, prompt: prompt, userID: c.newID(), generation: c.generation}
	c.messages = append(c.messages, Message{
		ID:             turn.userID,
		ConversationID: c.conversationID,
		Role:           RoleUser,
		Content:        text,
		Timestamp:      c.now(),
	})
	c.draft = ""
	c.busy = true
	c.err = ""
	return turn, nil
}

// Complete performs the network half of a turn started with Begin. Busy is
// cleared on every path.
func (c *Controller) Complete(ctx context.Context, turn *Turn) error {
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	conversationID, persist := c.ensureConversation(ctx, turn.text)
	if persist {
		c.setConversationID(turn.userID, conversationID)
		c.persist(ctx, "user message", func(ctx context.Context) error {
			return c.store.AppendMessage(ctx, gateway.NewMessage{
				ConversationID: conversationID,
				Role:           RoleUser,
				Content:        turn.text,
			})
		})
	}

	result, err := c.inference.Chat(ctx, turn.prompt)
	if err == nil && (result == nil || result.Kind == inference.KindFailed) {
		err = errors.New("chat returned no result")
	}
	if err != nil {
		c.logger.Printf("chat failed: %v", err)
		c.mu.Lock()
		c.err = ChatErrorText
		c.mu.Unlock()
		return err
	}

	reply := Message{
		ID:             c.newID(),
		ConversationID: conversationID,
		Role:           RoleSystem,
		Content:        result.Response,
		Timestamp:      c.now(),
		Sources:        dedupe(inference.Titles(result.Sources)),
		Animate:        true,
		Demo:           result.Kind == inference.KindDemoFallback,
	}
	c.mu.Lock()
	if c.generation == turn.generation {
		c.messages = append(c.messages, reply)
	}
	c.mu.Unlock()

	if persist {
		c.persist(ctx, "system message", func(ctx context.Context) error {
			return c.store.AppendMessage(ctx, gateway.NewMessage{
				ConversationID: conversationID,
				Role:           RoleSystem,
				Content:        reply.Content,
				Metadata:       gateway.MessageMetadata{Sources: reply.Sources},
			})
		})
		c.persist(ctx, "audit log", func(ctx context.Context) error {
			return c.store.RecordAudit(ctx, "CHAT", "Prompt: "+truncate(turn.text, titleRunes)+"...")
		})
	}
	return nil
}

// ensureConversation returns the conversation to persist into. It creates one
// on the first signed-in send; a failed create falls back to an in-memory turn
// and leaves the phase retryable.
func (c *Controller) ensureConversation(ctx context.Context, text string) (uint, bool) {
	if c.store == nil || c.identity == nil || !c.identity.SignedIn() {
		return 0, false
	}

	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
		id := c.conversationID
		c.mu.Unlock()
		return id, true
	case PhaseCreating:
		c.mu.Unlock()
		return 0, false
	}
	c.phase = PhaseCreating
	c.mu.Unlock()

	conv, err := c.store.CreateConversation(ctx, truncate(text, titleRunes)+"...")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseCreating {
		// Reset by NewConversation or LoadConversation while creating.
		return 0, false
	}
	if err != nil || conv == nil || conv.ID == 0 {
		c.phase = PhaseNoConversation
		c.persistFailures++
		c.logger.Printf("create conversation failed: %v", err)
		return 0, false
	}
	c.phase = PhaseActive
	c.conversationID = conv.ID
	return conv.ID, true
}

func (c *Controller) setConversationID(messageID string, conversationID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			c.messages[i].ConversationID = conversationID
			return
		}
	}
}

func (c *Controller) persist(ctx context.Context, what string, write func(context.Context) error) {
	if err := write(ctx); err != nil {
		c.mu.Lock()
		c.persistFailures++
		c.mu.Unlock()
		c.logger.Printf("persist %s failed: %v", what, err)
	}
}

// LoadConversation replaces the transcript with the stored one.
func (c *Controller) LoadConversation(ctx context.Context, id uint) error {
	if c.store == nil {
		return errors.New("no persistence gateway")
	}
	stored, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %d: %w", id, err)
	}

	msgs := make([]Message, len(stored))
	for i, m := range stored {
		msgs[i] = Message{
			ID:             fmt.Sprintf("%d", m.ID),
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			Timestamp:      m.CreatedAt,
			Sources:        dedupe(m.Metadata.Sources),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = msgs
	c.generation++
	c.conversationID = id
	c.phase = PhaseActive
	c.historyOpen = false
	return nil
}

// NewConversation drops the active conversation and shows the greeting.
func (c *Controller) NewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = 0
	c.phase = PhaseNoConversation
	c.messages = c.initialMessages()
	c.generation++
	c.historyOpen = false
	c.err = ""
}

// OpenHistory shows the history list, refreshing it when signed in.
func (c *Controller) OpenHistory(ctx context.Context) error {
	c.mu.Lock()
	c.historyOpen = true
	c.mu.Unlock()
	if c.store == nil || c.identity == nil || !c.identity.SignedIn() {
		return nil
	}
	convs, err := c.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	c.mu.Lock()
	c.history = convs
	c.mu.Unlock()
	return nil
}

func (c *Controller) CloseHistory() {
	c.mu.Lock()
	c.historyOpen = false
	c.mu.Unlock()
}

// MarkRevealed stops animating a message once the typewriter has finished.
func (c *Controller) MarkRevealed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Animate = false
			return
		}
	}
}

func (c *Controller) initialMessages() []Message {
	return []Message{{
		ID:        GreetingID,
		Role:      RoleSystem,
		Content:   GreetingText,
		Timestamp: c.now(),
	}}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
