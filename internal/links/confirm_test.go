package links

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// mockMessenger records calls and replays scripted reactions per message.
// Once a message's script runs out, no further reactions arrive.
type mockMessenger struct {
	calls     []string
	sent      []string
	reactions map[string][]string
	failOn    string
	nextID    int
	watching  int
	watchedAt []int // len(calls) when each watch started
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{reactions: make(map[string][]string)}
}

func (m *mockMessenger) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failOn != "" && strings.HasPrefix(call, m.failOn) {
		return errors.New("discord unavailable")
	}
	return nil
}

func (m *mockMessenger) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	if err := m.record("send"); err != nil {
		return "", err
	}
	m.nextID++
	m.sent = append(m.sent, content)
	return fmt.Sprintf("new-%d", m.nextID), nil
}

func (m *mockMessenger) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return m.record("react " + messageID + " " + emoji)
}

func (m *mockMessenger) RemoveReactions(ctx context.Context, channelID, messageID, emoji string) error {
	return m.record("unreact " + messageID + " " + emoji)
}

func (m *mockMessenger) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return m.record("delete " + messageID)
}

func (m *mockMessenger) SuppressEmbeds(ctx context.Context, channelID, messageID string) error {
	return m.record("suppress " + messageID)
}

func (m *mockMessenger) WatchReactions(channelID, messageID, userID string) (<-chan string, func()) {
	script := m.reactions[messageID]
	ch := make(chan string, len(script))
	for _, emoji := range script {
		ch <- emoji
	}
	m.watching++
	m.watchedAt = append(m.watchedAt, len(m.calls))
	stopped := false
	return ch, func() {
		if !stopped {
			stopped = true
			m.watching--
		}
	}
}

var instagramTrigger = Trigger{
	ChannelID:     "chan",
	MessageID:     "orig",
	AuthorID:      "u1",
	AuthorMention: "<@u1>",
	Content:       "check this out https://instagram.com/p/abc123",
}

func newTestFlow(t *testing.T, m *mockMessenger) *Flow {
	table := NewTable("", []Rule{{Host: "instagram.com", Replacement: "instagramez.com"}})
	return NewFlow(table, m, 20*time.Millisecond, 20*time.Millisecond, zaptest.NewLogger(t))
}

func TestFlow_OfferTimeout(t *testing.T) {
	m := newMockMessenger()
	state, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	if state != StateDone {
		t.Errorf("Expected state '%s', got '%s'", StateDone, state)
	}
	want := []string{
		"react orig " + EmojiReplace,
		"react orig " + EmojiAdd,
		"unreact orig " + EmojiReplace,
		"unreact orig " + EmojiAdd,
	}
	if !reflect.DeepEqual(m.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, m.calls)
	}
	if len(m.sent) != 0 {
		t.Errorf("Expected no message to be posted, got %v", m.sent)
	}
}

func TestFlow_ReplaceThenConfirm(t *testing.T) {
	m := newMockMessenger()
	m.reactions["orig"] = []string{EmojiReplace}

	state, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	if state != StateConfirmed {
		t.Errorf("Expected state '%s', got '%s'", StateConfirmed, state)
	}
	want := []string{
		"react orig " + EmojiReplace,
		"react orig " + EmojiAdd,
		"unreact orig " + EmojiReplace,
		"unreact orig " + EmojiAdd,
		"send",
		"delete orig",
		"react new-1 " + EmojiUndo,
		"unreact new-1 " + EmojiUndo,
	}
	if !reflect.DeepEqual(m.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, m.calls)
	}
	if len(m.sent) != 1 || m.sent[0] != "**<@u1>:**\n> check this out https://instagramez.com/p/abc123" {
		t.Errorf("Unexpected posted message %q", m.sent)
	}
}

func TestFlow_AddThenUndo(t *testing.T) {
	m := newMockMessenger()
	m.reactions["orig"] = []string{EmojiAdd}
	m.reactions["new-1"] = []string{"\U0001F5D1"} // no variation selector

	state, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	if state != StateUndone {
		t.Errorf("Expected state '%s', got '%s'", StateUndone, state)
	}
	want := []string{
		"react orig " + EmojiReplace,
		"react orig " + EmojiAdd,
		"unreact orig " + EmojiReplace,
		"unreact orig " + EmojiAdd,
		"suppress orig",
		"send",
		"react new-1 " + EmojiUndo,
		"delete new-1",
	}
	if !reflect.DeepEqual(m.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, m.calls)
	}
}

func TestFlow_IgnoresUnrecognizedReactions(t *testing.T) {
	m := newMockMessenger()
	m.reactions["orig"] = []string{"👍", "🎉", EmojiAdd}
	m.reactions["new-1"] = []string{EmojiReplace}

	state, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}

	// The stray 📤 on the new message is not an undo.
	if state != StateConfirmed {
		t.Errorf("Expected state '%s', got '%s'", StateConfirmed, state)
	}
	if len(m.sent) != 1 {
		t.Errorf("Expected 1 posted message, got %d", len(m.sent))
	}
}

func TestFlow_IgnoredReactionsDoNotExtendTimeout(t *testing.T) {
	m := &streamMessenger{mockMessenger: newMockMessenger()}
	table := NewTable("", DefaultRules)
	flow := NewFlow(table, m, 50*time.Millisecond, time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	state, err := flow.Run(context.Background(), Trigger{ChannelID: "c", MessageID: "orig", AuthorID: "u", Content: "https://x.com/a"})
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if state != StateDone {
		t.Errorf("Expected state '%s', got '%s'", StateDone, state)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the offer to expire after its timeout, took %v", elapsed)
	}
	if m.watches != 1 {
		t.Errorf("Expected a single watch for the whole offer, got %d", m.watches)
	}
}

// streamMessenger sends an unrecognized reaction every few milliseconds
// until the watch is stopped.
type streamMessenger struct {
	*mockMessenger
	watches int
}

func (s *streamMessenger) WatchReactions(channelID, messageID, userID string) (<-chan string, func()) {
	s.watches++
	ch := make(chan string)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case ch <- "👍":
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(func() { close(done) }) }
}

func TestFlow_WatchesBeforeOffering(t *testing.T) {
	m := newMockMessenger()
	m.reactions["orig"] = []string{EmojiReplace}

	if _, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger); err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	// Watches start before the affordances they wait on are added.
	if !reflect.DeepEqual(m.watchedAt, []int{0, 6}) {
		t.Errorf("Expected watches at calls [0 6], got %v (calls %v)", m.watchedAt, m.calls)
	}
	if m.watching != 0 {
		t.Errorf("Expected every watch to be stopped, %d still open", m.watching)
	}
}

func TestFlow_SkipsWithoutRule(t *testing.T) {
	m := newMockMessenger()
	trigger := instagramTrigger
	trigger.Content = "no links here"

	state, err := newTestFlow(t, m).Run(context.Background(), trigger)
	if err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
	if state != StateSkipped {
		t.Errorf("Expected state '%s', got '%s'", StateSkipped, state)
	}
	if len(m.calls) != 0 {
		t.Errorf("Expected no reactions, got %v", m.calls)
	}
}

func TestFlow_MessengerErrorEndsFlow(t *testing.T) {
	m := newMockMessenger()
	m.reactions["orig"] = []string{EmojiReplace}
	m.failOn = "send"

	state, err := newTestFlow(t, m).Run(context.Background(), instagramTrigger)
	if err == nil {
		t.Fatal("Expected Run() to return the send error")
	}
	if state != StateOffered {
		t.Errorf("Expected state '%s', got '%s'", StateOffered, state)
	}
	for _, call := range m.calls {
		if call == "delete orig" {
			t.Error("Expected the original message to survive a failed send")
		}
	}
}

func TestFlow_ContextCanceled(t *testing.T) {
	m := newMockMessenger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	table := NewTable("", DefaultRules)
	_, err := NewFlow(table, m, time.Minute, time.Minute, zaptest.NewLogger(t)).Run(ctx, instagramTrigger)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestChoose(t *testing.T) {
	tests := map[string]Choice{
		EmojiReplace:                     ChoiceReplace,
		EmojiAdd:                         ChoiceAdd,
		EmojiUndo:                        ChoiceUndo,
		"\U0001F5D1":                     ChoiceUndo,
		"👍":                              ChoiceNone,
		"":                               ChoiceNone,
		EmojiReplace + variationSelector: ChoiceReplace,
	}
	for emoji, want := range tests {
		if got := Choose(emoji); got != want {
			t.Errorf("Choose(%q): expected %d, got %d", emoji, want, got)
		}
	}
}
