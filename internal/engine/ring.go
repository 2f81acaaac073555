package engine

import "sync"

// maxDispatchNotifications bounds the dispatch alert list. New entries
// push to the front; the oldest falls off beyond capacity.
const maxDispatchNotifications = 6

// NotificationRing is the bounded, front-ordered dispatch alert list. An
// unread flag is raised whenever an entry is pushed and cleared only by an
// explicit Acknowledge, never by a timer.
type NotificationRing struct {
	mu      sync.Mutex
	entries []DispatchNotification
	unread  bool
}

// NewNotificationRing returns an empty ring.
func NewNotificationRing() *NotificationRing {
	return &NotificationRing{}
}

// Push prepends a notification, evicting the oldest beyond capacity, and
// marks the ring unread.
func (r *NotificationRing) Push(n DispatchNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]DispatchNotification{n}, r.entries...)
	if len(r.entries) > maxDispatchNotifications {
		r.entries = r.entries[:maxDispatchNotifications]
	}

	r.unread = true
}

// List returns the notifications, newest first.
func (r *NotificationRing) List() []DispatchNotification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DispatchNotification, len(r.entries))
	copy(out, r.entries)

	return out
}

// Unread reports whether any notification arrived since the last
// acknowledgement.
func (r *NotificationRing) Unread() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.unread
}

// Acknowledge clears the unread flag. The entries themselves remain.
func (r *NotificationRing) Acknowledge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unread = false
}
