package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cortex/internal/client/gateway"
	"cortex/internal/client/inference"
	"cortex/internal/events"
)

type fakeInference struct {
	result  *inference.ChatResult
	err     error
	prompts []string
	// release, when set, blocks Chat until closed.
	release chan struct{}
	started chan struct{}
}

func (f *fakeInference) Chat(_ context.Context, prompt string) (*inference.ChatResult, error) {
	f.prompts = append(f.prompts, prompt)
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	calls     []string
	created   []string
	appended  []gateway.NewMessage
	audits    []string
	createErr error
	appendErr error
	messages  []gateway.Message
	nextID    uint
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStore) CreateConversation(_ context.Context, title string) (*gateway.Conversation, error) {
	f.record("create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, title)
	return &gateway.Conversation{ID: 100 + f.nextID, Title: title}, nil
}

func (f *fakeStore) ListConversations(_ context.Context) ([]gateway.Conversation, error) {
	f.record("list")
	return []gateway.Conversation{{ID: 2, Title: "b"}, {ID: 1, Title: "a"}}, nil
}

func (f *fakeStore) ListMessages(_ context.Context, id uint) ([]gateway.Message, error) {
	f.record(fmt.Sprintf("messages:%d", id))
	return f.messages, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, msg gateway.NewMessage) error {
	f.record("append:" + msg.Role)
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeStore) RecordAudit(_ context.Context, action, details string) error {
	f.record("audit")
	f.audits = append(f.audits, action+"|"+details)
	return nil
}

type identity bool

func (i identity) SignedIn() bool { return bool(i) }

type persona string

func (p persona) Persona() (string, bool) { return string(p), p != "" }

func ok(response string, sources ...inference.Source) *fakeInference {
	return &fakeInference{result: &inference.ChatResult{Kind: inference.KindOK, Response: response, Sources: sources}}
}

func newController(inf Inference, store Store, signedIn bool, p string) *Controller {
	n := 0
	return NewController(Options{
		Inference:    inf,
		Store:        store,
		Identity:     identity(signedIn),
		Instructions: persona(p),
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
}

func TestInitialGreeting(t *testing.T) {
	c := newController(ok("x"), nil, false, "")
	snap := c.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != GreetingID || snap.Messages[0].Role != RoleSystem {
		t.Fatalf("unexpected initial transcript %+v", snap.Messages)
	}
	if snap.Phase != PhaseNoConversation || snap.Busy {
		t.Fatalf("unexpected initial state %+v", snap)
	}
}

func TestBlankSendIsNoOp(t *testing.T) {
	inf := ok("x")
	c := newController(inf, &fakeStore{}, true, "")
	if err := c.SendMessage(context.Background(), "   \n"); err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if len(c.Snapshot().Messages) != 1 || len(inf.prompts) != 0 {
		t.Fatal("blank send should not change state or call the gateway")
	}
}

func TestOptimisticAppendBeforeNetwork(t *testing.T) {
	inf := ok("reply")
	inf.release = make(chan struct{})
	inf.started = make(chan struct{})
	c := newController(inf, nil, false, "")
	c.SetDraft("hello")

	turn, err := c.Begin("hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[1].Role != RoleUser || snap.Messages[1].Content != "hello" {
		t.Fatalf("user message not appended: %+v", snap.Messages)
	}
	if snap.Draft != "" || !snap.Busy {
		t.Fatalf("draft not cleared or busy not raised: %+v", snap)
	}
	if len(inf.prompts) != 0 {
		t.Fatal("network called during Begin")
	}

	done := make(chan error, 1)
	go func() { done <- c.Complete(context.Background(), turn) }()
	<-inf.started
	if !c.Snapshot().Busy {
		t.Fatal("busy should hold while chat is in flight")
	}
	close(inf.release)
	if err := <-done; err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Snapshot().Busy {
		t.Fatal("busy should clear after the turn settles")
	}
}

func TestSecondSendWhileBusy(t *testing.T) {
	c := newController(ok("x"), nil, false, "")
	if _, err := c.Begin("first"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := c.Begin("second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got := len(c.Snapshot().Messages); got != 2 {
		t.Fatalf("expected only the first user message, got %d messages", got)
	}
}

func TestFailureSetsErrorAndClearsBusy(t *testing.T) {
	inf := &fakeInference{result: &inference.ChatResult{Kind: inference.KindFailed}, err: errors.New("down")}
	store := &fakeStore{}
	c := newController(inf, store, true, "")

	if err := c.SendMessage(context.Background(), "hello"); err == nil {
		t.Fatal("expected chat error")
	}
	snap := c.Snapshot()
	if snap.Busy || snap.Error != ChatErrorText {
		t.Fatalf("unexpected state after failure: busy=%v error=%q", snap.Busy, snap.Error)
	}
	if len(snap.Messages) != 2 || snap.Messages[1].Role != RoleUser {
		t.Fatalf("failure must not append a system message: %+v", snap.Messages)
	}
	for _, call := range store.calls {
		if call == "append:system" || call == "audit" {
			t.Fatalf("unexpected persistence call %q after failure", call)
		}
	}
}

func TestErrorClearedOnNextSend(t *testing.T) {
	inf := &fakeInference{err: errors.New("down")}
	c := newController(inf, nil, false, "")
	_ = c.SendMessage(context.Background(), "one")
	inf.err = nil
	inf.result = &inference.ChatResult{Kind: inference.KindOK, Response: "ok"}
	if _, err := c.Begin("two"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if c.Snapshot().Error != "" {
		t.Fatal("error should clear when a new send starts")
	}
}

func TestExplainArchitectureDedupesSources(t *testing.T) {
	store := &fakeStore{}
	c := newController(ok("The architecture is RAG.", "doc.pdf", "doc.pdf"), store, true, "")

	if err := c.SendMessage(context.Background(), "Explain the architecture"); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := c.Snapshot()
	reply := snap.Messages[len(snap.Messages)-1]
	if reply.Role != RoleSystem || !reply.Animate || reply.Demo {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(reply.Sources) != 1 || reply.Sources[0] != "doc.pdf" {
		t.Fatalf("sources = %v, want [doc.pdf]", reply.Sources)
	}
	if got := store.appended[len(store.appended)-1].Metadata.Sources; len(got) != 1 {
		t.Fatalf("persisted sources = %v", got)
	}
}

func TestSignedInTurnPersistsInOrder(t *testing.T) {
	store := &fakeStore{}
	c := newController(ok("answer"), store, true, "")

	text := "What are the data retention rules for audit logs?"
	if err := c.SendMessage(context.Background(), text); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := []string{"create", "append:user", "append:system", "audit"}
	if strings.Join(store.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", store.calls, want)
	}
	if store.created[0] != "What are the data retention ru..." {
		t.Fatalf("title = %q", store.created[0])
	}
	if store.audits[0] != "CHAT|Prompt: What are the data retention ru..." {
		t.Fatalf("audit = %q", store.audits[0])
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseActive || snap.ConversationID != 101 {
		t.Fatalf("unexpected phase %v id %d", snap.Phase, snap.ConversationID)
	}
	if snap.Messages[1].ConversationID != 101 {
		t.Fatal("user message should adopt the new conversation id")
	}

	if err := c.SendMessage(context.Background(), "follow up"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("conversation created %d times", len(store.created))
	}
}

func TestUnauthenticatedSendSkipsPersistence(t *testing.T) {
	store := &fakeStore{}
	c := newController(ok("reply"), store, false, "")

	if err := c.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected no persistence calls, got %v", store.calls)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 3 || snap.Messages[2].Content != "reply" || snap.Phase != PhaseNoConversation {
		t.Fatalf("unexpected transcript %+v", snap)
	}
}

func TestCreateFailureIsRetried(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	c := newController(ok("reply"), store, true, "")

	if err := c.SendMessage(context.Background(), "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseNoConversation || len(snap.Messages) != 3 {
		t.Fatalf("unexpected state after failed create: %+v", snap)
	}
	if c.PersistFailures() != 1 {
		t.Fatalf("persist failures = %d", c.PersistFailures())
	}

	store.createErr = nil
	if err := c.SendMessage(context.Background(), "second"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Snapshot().Phase != PhaseActive || len(store.created) != 1 {
		t.Fatal("second send should create the conversation")
	}
}

func TestPersistFailureDoesNotSurface(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("queue down")}
	c := newController(ok("reply"), store, true, "")

	if err := c.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := c.Snapshot()
	if snap.Error != "" || len(snap.Messages) != 3 {
		t.Fatalf("persistence failure leaked into chat state: %+v", snap)
	}
	if c.PersistFailures() != 2 {
		t.Fatalf("persist failures = %d, want 2", c.PersistFailures())
	}
}

func TestPersonaPrefixesPrompt(t *testing.T) {
	inf := ok("x")
	c := newController(inf, nil, false, "Be terse.")
	if err := c.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if inf.prompts[0] != "System: Be terse.\nUser: hi" {
		t.Fatalf("prompt = %q", inf.prompts[0])
	}
	if c.Snapshot().Messages[1].Content != "hi" {
		t.Fatal("transcript should show the raw text")
	}

	inf = ok("x")
	c = newController(inf, nil, false, "")
	_ = c.SendMessage(context.Background(), "hi")
	if inf.prompts[0] != "hi" {
		t.Fatalf("prompt without persona = %q", inf.prompts[0])
	}
}

func TestDemoReplyIsTagged(t *testing.T) {
	inf := &fakeInference{result: &inference.ChatResult{Kind: inference.KindDemoFallback, Response: "canned"}}
	c := newController(inf, nil, false, "")
	_ = c.SendMessage(context.Background(), "hi")
	snap := c.Snapshot()
	if !snap.Messages[2].Demo {
		t.Fatal("demo reply should be tagged")
	}
}

func TestLoadConversationReplacesTranscript(t *testing.T) {
	store := &fakeStore{messages: []gateway.Message{
		{ID: 1, ConversationID: 7, Role: RoleUser, Content: "q", CreatedAt: time.Unix(1, 0)},
		{ID: 2, ConversationID: 7, Role: RoleSystem, Content: "a", Metadata: gateway.MessageMetadata{Sources: []string{"x.pdf", "x.pdf"}}},
	}}
	c := newController(ok("live"), store, true, "")
	_ = c.SendMessage(context.Background(), "live question")
	if err := c.OpenHistory(context.Background()); err != nil {
		t.Fatalf("open history: %v", err)
	}
	if !c.Snapshot().HistoryOpen || len(c.Snapshot().History) != 2 {
		t.Fatal("history should be open and populated")
	}

	if err := c.LoadConversation(context.Background(), 7); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[0].Content != "q" {
		t.Fatalf("transcript not replaced: %+v", snap.Messages)
	}
	for _, m := range snap.Messages {
		if m.Animate {
			t.Fatalf("loaded message %s should not animate", m.ID)
		}
	}
	if snap.ConversationID != 7 || snap.Phase != PhaseActive || snap.HistoryOpen {
		t.Fatalf("unexpected state %+v", snap)
	}
	if got := snap.Messages[1].Sources; len(got) != 1 || got[0] != "x.pdf" {
		t.Fatalf("stored sources should load deduplicated, got %v", got)
	}
}

func TestNewConversationResets(t *testing.T) {
	store := &fakeStore{}
	c := newController(ok("reply"), store, true, "")
	_ = c.SendMessage(context.Background(), "hello")

	c.NewConversation()
	snap := c.Snapshot()
	if snap.ConversationID != 0 || snap.Phase != PhaseNoConversation {
		t.Fatalf("unexpected state %+v", snap)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].ID != GreetingID {
		t.Fatalf("expected greeting only, got %+v", snap.Messages)
	}
}

func TestReplyDroppedAfterConversationSwitch(t *testing.T) {
	inf := ok("late reply")
	inf.release = make(chan struct{})
	inf.started = make(chan struct{})
	c := newController(inf, nil, false, "")

	turn, err := c.Begin("hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Complete(context.Background(), turn) }()
	<-inf.started
	c.NewConversation()
	close(inf.release)
	<-done

	snap := c.Snapshot()
	if len(snap.Messages) != 1 || snap.Busy {
		t.Fatalf("late reply leaked into new conversation: %+v", snap)
	}
}

func TestMarkRevealed(t *testing.T) {
	c := newController(ok("reply"), nil, false, "")
	_ = c.SendMessage(context.Background(), "hi")
	reply := c.Snapshot().Messages[2]
	c.MarkRevealed(reply.ID)
	if c.Snapshot().Messages[2].Animate {
		t.Fatal("reply should stop animating")
	}
}

type fakeOpener struct{ opened []string }

func (f *fakeOpener) Open(url string) error {
	f.opened = append(f.opened, url)
	return nil
}

func TestCitationRouting(t *testing.T) {
	opener := &fakeOpener{}
	bus := events.NewBus[events.CitationLookup]()
	var lookups []string
	bus.Subscribe(func(e events.CitationLookup) { lookups = append(lookups, e.Title) })
	router := NewCitationRouter(opener, bus)

	if err := router.Route("https://docs.example.com/a"); err != nil {
		t.Fatalf("route url: %v", err)
	}
	if err := router.Route("Security_Protocols.md"); err != nil {
		t.Fatalf("route title: %v", err)
	}

	if len(opener.opened) != 1 || opener.opened[0] != "https://docs.example.com/a" {
		t.Fatalf("opened = %v", opener.opened)
	}
	if len(lookups) != 1 || lookups[0] != "Security_Protocols.md" {
		t.Fatalf("lookups = %v", lookups)
	}
}
