package hub

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachAndPublishDeliversMessage(t *testing.T) {
	h := New()
	taskID := uuid.New()

	ch := h.Attach(taskID)
	h.Publish(taskID, Message{Kind: KindProgress, Percent: 50})

	select {
	case msg := <-ch:
		assert.Equal(t, KindProgress, msg.Kind)
		assert.Equal(t, 50, msg.Percent)
	case <-time.After(time.Second):
		t.Fatal("expected a message to be delivered")
	}
}

func TestPublishToUnattachedTaskIsNoop(t *testing.T) {
	h := New()
	h.Publish(uuid.New(), Message{Kind: KindProgress})
}

func TestAttachDisplacesPreviousObserver(t *testing.T) {
	h := New()
	taskID := uuid.New()

	first := h.Attach(taskID)
	second := h.Attach(taskID)

	_, open := <-first
	assert.False(t, open, "previous observer channel should be closed")

	h.Publish(taskID, Message{Kind: KindProgress, Percent: 10})
	select {
	case msg := <-second:
		assert.Equal(t, 10, msg.Percent)
	case <-time.After(time.Second):
		t.Fatal("expected new observer to receive the message")
	}
}

func TestPublishTerminalMessageDetachesObserver(t *testing.T) {
	h := New()
	taskID := uuid.New()

	ch := h.Attach(taskID)

	done := make(chan struct{})
	go func() {
		h.Publish(taskID, Message{Kind: KindComplete})
		close(done)
	}()

	select {
	case msg := <-ch:
		assert.Equal(t, KindComplete, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected terminal message to be delivered")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Publish to return after delivering terminal message")
	}

	_, open := <-ch
	assert.False(t, open, "channel should be closed after terminal message")
}

func TestDetachWithoutObserverIsSafe(t *testing.T) {
	h := New()
	h.Detach(uuid.New())
}
