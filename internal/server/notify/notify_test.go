package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexkey/lexkey/internal/server/notify"
)

func TestPublishSubscribe(t *testing.T) {
	b := notify.New()
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	ev := notify.Event{Type: notify.EventItemInserted, ListSlug: "todo", ItemID: "abc", Position: "n"}
	b.Publish(ev)

	got := <-ch
	assert.Equal(t, ev, got)
}

func TestMultipleSubscribers(t *testing.T) {
	b := notify.New()
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(notify.Event{Type: notify.EventListCreated, ListSlug: "x"})

	assert.Equal(t, "x", (<-ch1).ListSlug)
	assert.Equal(t, "x", (<-ch2).ListSlug)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := notify.New()
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	// Channel is closed after cancel.
	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after cancel must not panic.
	b.Publish(notify.Event{Type: notify.EventItemDeleted})
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := notify.New()
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	// Overfill the buffer; extra events are dropped, not blocking.
	for i := 0; i < 200; i++ {
		b.Publish(notify.Event{Type: notify.EventItemMoved})
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	require.LessOrEqual(t, count, 64)
	require.Greater(t, count, 0)
}

func TestClose(t *testing.T) {
	b := notify.New()
	ch, _ := b.Subscribe()

	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// Subscribe after close returns a closed channel.
	ch2, cancel := b.Subscribe()
	defer cancel()
	_, ok = <-ch2
	assert.False(t, ok)

	// Idempotent.
	b.Close()
}
