package discord

import (
	"testing"

	"github.com/howl-bots/howl/internal/links"
)

func TestReactionWaiters_Delivers(t *testing.T) {
	w := NewReactionWaiters()
	reactions, stop := w.Watch("msg", "author")
	defer stop()

	if w.Dispatch("msg", "someone-else", links.EmojiAdd) {
		t.Error("Expected a reaction from another user not to be delivered")
	}
	if w.Dispatch("other-msg", "author", links.EmojiAdd) {
		t.Error("Expected a reaction on another message not to be delivered")
	}
	if !w.Dispatch("msg", "author", links.EmojiReplace) {
		t.Error("Expected the author's reaction to be delivered")
	}

	if got := <-reactions; got != links.EmojiReplace {
		t.Errorf("Expected '%s', got '%s'", links.EmojiReplace, got)
	}
}

func TestReactionWaiters_QueuesBackToBackReactions(t *testing.T) {
	w := NewReactionWaiters()
	reactions, stop := w.Watch("msg", "author")
	defer stop()

	// Both arrive before the reader looks at the first one.
	w.Dispatch("msg", "author", "👍")
	w.Dispatch("msg", "author", links.EmojiAdd)

	if got := <-reactions; got != "👍" {
		t.Errorf("Expected '👍' first, got '%s'", got)
	}
	if got := <-reactions; got != links.EmojiAdd {
		t.Errorf("Expected '%s' second, got '%s'", links.EmojiAdd, got)
	}
	if w.Len() != 1 {
		t.Errorf("Expected the watcher to stay registered, got %d", w.Len())
	}
}

func TestReactionWaiters_Stop(t *testing.T) {
	w := NewReactionWaiters()
	_, stop := w.Watch("msg", "author")
	_, other := w.Watch("msg", "author")
	defer other()

	stop()
	stop()

	if w.Len() != 1 {
		t.Errorf("Expected 1 watcher left, got %d", w.Len())
	}
}

func TestReactionWaiters_FullBufferDrops(t *testing.T) {
	w := NewReactionWaiters()
	_, stop := w.Watch("msg", "author")
	defer stop()

	for i := 0; i < reactionBuffer; i++ {
		if !w.Dispatch("msg", "author", "👍") {
			t.Fatalf("Expected reaction %d to be queued", i)
		}
	}
	if w.Dispatch("msg", "author", "👍") {
		t.Error("Expected a reaction beyond the buffer to be dropped")
	}
}

func TestReactionWaiters_NoWaiter(t *testing.T) {
	w := NewReactionWaiters()
	if w.Dispatch("msg", "author", links.EmojiAdd) {
		t.Error("Expected nothing to be delivered without a waiter")
	}
}
