package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:         srv.URL,
		ClientID:        "test-client",
		RefreshAttempts: 3,
		Retry:           RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond},
	}, zerolog.Nop())
	return c, srv
}

func loginTestClient(t *testing.T, c *Client) {
	t.Helper()
	c.mu.Lock()
	c.session = &domain.AuthSession{
		UserID:       "u1",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
	}
	c.mu.Unlock()
}

func TestLogin_StoresSession(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/security/authenticate/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.LoginResponse{
			UserID:       "u1",
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresIn:    3600,
		})
	}))

	sess, err := c.Login(context.Background(), domain.LoginRequest{Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if sess.UserID != "u1" || sess.AccessToken != "at" {
		t.Errorf("unexpected session %+v", sess)
	}
	if _, ok := c.Session(); !ok {
		t.Error("expected session to be stored")
	}
}

func TestDo_NotLoggedIn(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server")
	}))

	err := c.KeepAlive(context.Background(), domain.KeepAliveRequest{})
	if !errors.Is(err, domain.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestDo_RefreshAndReplayOn401(t *testing.T) {
	var keepAliveTokens []string
	var refreshes atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/security/oauth/token":
			refreshes.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "fresh-token",
				"refresh_token": "refresh-2",
				"expires_in":    3600,
			})
		case "/rtc-api/users/endpoints/keepalive":
			token := r.Header.Get("Authorization")
			keepAliveTokens = append(keepAliveTokens, token)
			if token != "Bearer fresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	loginTestClient(t, c)

	if err := c.KeepAlive(context.Background(), domain.KeepAliveRequest{UserID: "u1"}); err != nil {
		t.Fatalf("expected replay to succeed, got %v", err)
	}
	if got := refreshes.Load(); got != 1 {
		t.Errorf("expected exactly one refresh, got %d", got)
	}
	if len(keepAliveTokens) != 2 {
		t.Fatalf("expected original plus replayed request, got %d", len(keepAliveTokens))
	}
	if keepAliveTokens[0] != "Bearer stale-token" || keepAliveTokens[1] != "Bearer fresh-token" {
		t.Errorf("unexpected token sequence %v", keepAliveTokens)
	}

	sess, _ := c.Session()
	if sess.AccessToken != "fresh-token" || sess.RefreshToken != "refresh-2" {
		t.Errorf("expected rotated credentials, got %+v", sess)
	}
}

func TestRefreshState_GrantsTurnsInArrivalOrder(t *testing.T) {
	st := &refreshState{done: make(chan struct{})}
	first := st.park()
	second := st.park()
	third := st.park()

	released := func(w *refreshWaiter) bool {
		select {
		case <-w.turn:
			return true
		default:
			return false
		}
	}

	st.settle(nil)
	if !released(first) || released(second) || released(third) {
		t.Fatal("expected only the oldest parked request to be released")
	}
	st.finish()
	if !released(second) || released(third) {
		t.Fatal("expected the second request to follow the first")
	}
	st.abandon(third)
	st.finish()

	// A request parking after the queue drained goes immediately.
	late := st.park()
	if !released(late) {
		t.Fatal("expected a late request to be released without waiting")
	}
}

func TestDo_ParkedRequestsReplayInArrivalOrder(t *testing.T) {
	refreshGate := make(chan struct{})
	var mu sync.Mutex
	var replayed []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/security/oauth/token":
			<-refreshGate
			json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh-token", "expires_in": 3600})
		case "/rtc-api/users/endpoints/keepalive":
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var req domain.KeepAliveRequest
			json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			replayed = append(replayed, req.UserEndpointID)
			mu.Unlock()
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	loginTestClient(t, c)

	queueLen := func() int {
		c.mu.Lock()
		st := c.refresh
		c.mu.Unlock()
		if st == nil {
			return 0
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.queue)
	}
	waitQueue := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for queueLen() < n {
			if time.Now().After(deadline) {
				t.Fatalf("replay queue never reached %d entries", n)
			}
			time.Sleep(time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	send := func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.KeepAlive(context.Background(), domain.KeepAliveRequest{UserEndpointID: id}); err != nil {
				t.Errorf("keepalive %s failed: %v", id, err)
			}
		}()
	}

	// The first request hits the stale token, reserves the head replay
	// slot and starts the refresh; the rest park behind it in order.
	send("first")
	waitQueue(1)
	send("second")
	waitQueue(2)
	send("third")
	waitQueue(3)
	close(refreshGate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 3 || replayed[0] != "first" || replayed[1] != "second" || replayed[2] != "third" {
		t.Fatalf("replay order = %v, want [first second third]", replayed)
	}
}

func TestDo_RefreshExhaustionFailsUnauthorized(t *testing.T) {
	var refreshes atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/security/oauth/token":
			refreshes.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	loginTestClient(t, c)

	err := c.KeepAlive(context.Background(), domain.KeepAliveRequest{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if got := refreshes.Load(); got != 3 {
		t.Errorf("expected 3 refresh attempts, got %d", got)
	}
}

func TestDo_404MapsToHTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	loginTestClient(t, c)

	err := c.StopViewStream(context.Background(), domain.StopViewStreamRequest{})
	var httpErr *domain.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != 404 {
		t.Errorf("expected HTTPError 404, got %v", err)
	}
}

func TestWithRetry_RetriesConnectionErrors(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c.cfg.Retry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}.withDefaults()

	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return domain.ErrConnection
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetry_DoesNotRetryHTTPErrors(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c.cfg.Retry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}.withDefaults()

	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return &domain.HTTPError{Code: 500}
	})
	var httpErr *domain.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestGetConferenceSimpleView_ParsesMetadata(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "conf1",
			"mode":    "ROUTER",
			"version": 5,
			"participants": []map[string]any{{
				"id": "user2",
				"endpoints": []map[string]any{{
					"id": "ep2",
					"streams": []map[string]any{
						{"id": "st1", "type": "MIC_AND_CAM"},
					},
				}},
			}},
			"metadata": map[string]any{
				"TRACK_MUTED/audio/st1": true,
				"ON_HOLD/user2":         true,
			},
		})
	}))
	loginTestClient(t, c)

	snap, err := c.GetConferenceSimpleView(context.Background(), "conf1")
	if err != nil {
		t.Fatalf("simple view failed: %v", err)
	}
	if snap.Version != 5 || snap.Mode != domain.ConferenceModeRouter {
		t.Errorf("unexpected snapshot header %+v", snap)
	}
	if len(snap.Participants) != 1 || snap.Participants[0].ID != "ep2" {
		t.Fatalf("unexpected participants %+v", snap.Participants)
	}
	if snap.Participants[0].Streams[0].Kind != domain.StreamKindMicAndCam {
		t.Errorf("unexpected stream kind %v", snap.Participants[0].Streams[0].Kind)
	}
	if !snap.MutedAudioStreams["st1"] {
		t.Error("expected st1 to be marked audio-muted")
	}
	if !snap.OnHold {
		t.Error("expected conference to be on hold")
	}
}
