package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func Test_Token_Round_Trip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateSessionToken(testSecret, "alice", time.Hour)
	req.NoError(err)

	claims, err := ParseSessionToken(testSecret, token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)
	req.Equal("chat-sync", claims.Issuer)
}

func Test_Wrong_Secret_Is_Rejected(t *testing.T) {
	req := require.New(t)

	token, err := GenerateSessionToken(testSecret, "alice", time.Hour)
	req.NoError(err)

	_, err = ParseSessionToken([]byte("other-secret"), token)
	req.Error(err)
}

func Test_Expired_Token_Is_Rejected(t *testing.T) {
	req := require.New(t)

	token, err := GenerateSessionToken(testSecret, "alice", -time.Minute)
	req.NoError(err)

	_, err = ParseSessionToken(testSecret, token)
	req.ErrorIs(err, jwt.ErrTokenExpired)
}

func Test_Watcher_Publishes_User_Transitions(t *testing.T) {
	req := require.New(t)
	watcher := NewWatcher(testSecret)
	changes := watcher.Changes()

	_, ok := watcher.CurrentUser()
	req.False(ok)

	token, err := GenerateSessionToken(testSecret, "alice", time.Hour)
	req.NoError(err)
	req.NoError(watcher.SetToken(token))

	user, ok := watcher.CurrentUser()
	req.True(ok)
	req.Equal("alice", user)
	req.Equal("alice", <-changes)

	watcher.Clear()
	_, ok = watcher.CurrentUser()
	req.False(ok)
	req.Equal("", <-changes)
}

func Test_Watcher_Rejects_Invalid_Tokens(t *testing.T) {
	req := require.New(t)
	watcher := NewWatcher(testSecret)

	req.Error(watcher.SetToken("not-a-token"))
	_, ok := watcher.CurrentUser()
	req.False(ok)
}

func Test_Slow_Subscriber_Sees_The_Latest_State(t *testing.T) {
	req := require.New(t)
	watcher := NewWatcher(testSecret)
	changes := watcher.Changes()

	first, err := GenerateSessionToken(testSecret, "alice", time.Hour)
	req.NoError(err)
	second, err := GenerateSessionToken(testSecret, "bob", time.Hour)
	req.NoError(err)

	// Two transitions without a read in between: only the latest survives.
	req.NoError(watcher.SetToken(first))
	req.NoError(watcher.SetToken(second))

	req.Equal("bob", <-changes)
	select {
	case stale := <-changes:
		t.Fatalf("unexpected stale transition %q", stale)
	default:
	}
}
