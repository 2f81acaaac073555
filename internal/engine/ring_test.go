package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingNewestFirstWithEviction(t *testing.T) {
	t.Parallel()

	r := NewNotificationRing()

	for i := 0; i < 8; i++ {
		r.Push(DispatchNotification{ID: fmt.Sprintf("n-%d", i)})
	}

	got := r.List()
	require.Len(t, got, maxDispatchNotifications)

	// Newest first; the two oldest fell off.
	assert.Equal(t, "n-7", got[0].ID)
	assert.Equal(t, "n-2", got[len(got)-1].ID)
}

func TestRingUnreadClearedOnlyByAcknowledge(t *testing.T) {
	t.Parallel()

	r := NewNotificationRing()
	assert.False(t, r.Unread())

	r.Push(DispatchNotification{ID: "n-1"})
	assert.True(t, r.Unread())

	// Reading the list does not clear the flag.
	r.List()
	assert.True(t, r.Unread())

	r.Acknowledge()
	assert.False(t, r.Unread())

	// Entries survive acknowledgement.
	assert.Len(t, r.List(), 1)

	r.Push(DispatchNotification{ID: "n-2"})
	assert.True(t, r.Unread())
}

func TestRingListIsACopy(t *testing.T) {
	t.Parallel()

	r := NewNotificationRing()
	r.Push(DispatchNotification{ID: "n-1"})

	got := r.List()
	got[0].ID = "mutated"

	assert.Equal(t, "n-1", r.List()[0].ID)
}
