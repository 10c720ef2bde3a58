package auth

import (
	"sync"
)

// Watcher is the live "current user id or none" stream. SetToken validates
// a session token and flips the current user; Clear signs out. Subscribers
// get the new user id (empty on sign-out) on a buffered channel; a slow
// subscriber loses intermediate transitions, never the latest state.
type Watcher struct {
	mu     sync.RWMutex
	secret []byte
	userID string
	subs   []chan string
}

func NewWatcher(secret []byte) *Watcher {
	return &Watcher{secret: secret}
}

// CurrentUser returns the signed-in user id, if any.
func (w *Watcher) CurrentUser() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.userID, w.userID != ""
}

// Changes returns a channel receiving user transitions.
func (w *Watcher) Changes() <-chan string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan string, 1)
	w.subs = append(w.subs, ch)
	return ch
}

// SetToken validates the session token and publishes the new current user.
func (w *Watcher) SetToken(tokenString string) error {
	claims, err := ParseSessionToken(w.secret, tokenString)
	if err != nil {
		return err
	}
	w.set(claims.UserID)
	return nil
}

// Clear signs the current user out.
func (w *Watcher) Clear() {
	w.set("")
}

func (w *Watcher) set(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.userID == userID {
		return
	}
	w.userID = userID
	for _, ch := range w.subs {
		// Keep only the latest transition for slow subscribers.
		select {
		case ch <- userID:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- userID
		}
	}
}
