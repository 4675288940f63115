// Package api implements the signaling REST client, including the
// token-refresh-and-replay cycle for expired credentials.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// Config holds the client settings.
type Config struct {
	BaseURL         string
	ClientID        string
	ClientSecret    string
	Timeout         time.Duration
	RefreshAttempts int
	Retry           RetryPolicy
}

// Client talks to the rtc-api signaling service. All exported methods
// are safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger

	mu      sync.Mutex
	session *domain.AuthSession
	refresh *refreshState
}

// refreshState is a single in-flight refresh cycle. Requests arriving
// while it runs join a FIFO and, once the cycle settles, replay one at
// a time in arrival order.
type refreshState struct {
	done chan struct{}
	err  error

	mu       sync.Mutex
	settled  bool
	inFlight bool
	queue    []*refreshWaiter
}

// refreshWaiter is one parked request's place in the replay order.
type refreshWaiter struct {
	turn     chan struct{}
	released bool
	gone     bool
}

// park registers a request at the tail of the replay queue.
func (st *refreshState) park() *refreshWaiter {
	st.mu.Lock()
	defer st.mu.Unlock()
	w := &refreshWaiter{turn: make(chan struct{})}
	st.queue = append(st.queue, w)
	if st.settled && st.err == nil && !st.inFlight {
		st.grantLocked()
	}
	return w
}

// settle records the cycle outcome and, on success, starts the ordered
// replay of parked requests.
func (st *refreshState) settle(err error) {
	st.mu.Lock()
	st.err = err
	st.settled = true
	if err == nil {
		st.grantLocked()
	}
	st.mu.Unlock()
	close(st.done)
}

// grantLocked hands the turn to the oldest parked request still waiting.
func (st *refreshState) grantLocked() {
	for len(st.queue) > 0 {
		w := st.queue[0]
		st.queue = st.queue[1:]
		if w.gone {
			continue
		}
		w.released = true
		st.inFlight = true
		close(w.turn)
		return
	}
	st.inFlight = false
}

// finish is called by a released request once its replay has been sent.
func (st *refreshState) finish() {
	st.mu.Lock()
	st.grantLocked()
	st.mu.Unlock()
}

// await parks the caller, waits for the cycle to settle and then for
// its turn in the replay order.
func (st *refreshState) await(ctx context.Context) (func(), error) {
	w := st.park()
	select {
	case <-st.done:
	case <-ctx.Done():
		st.abandon(w)
		return nil, ctx.Err()
	}
	if st.err != nil {
		st.abandon(w)
		return nil, fmt.Errorf("token refresh failed: %w", domain.ErrUnauthorized)
	}
	select {
	case <-w.turn:
		return func() { st.finish() }, nil
	case <-ctx.Done():
		st.abandon(w)
		return nil, ctx.Err()
	}
}

// abandon removes a request from the replay chain when its context is
// cancelled or the cycle failed.
func (st *refreshState) abandon(w *refreshWaiter) {
	st.mu.Lock()
	w.gone = true
	if w.released {
		st.grantLocked()
	}
	st.mu.Unlock()
}

// NewClient builds a client for the given base URL.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RefreshAttempts == 0 {
		cfg.RefreshAttempts = 3
	}
	cfg.Retry = cfg.Retry.withDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With().Str("module", "api").Logger(),
	}
}

// Session returns a copy of the current auth session, if logged in.
func (c *Client) Session() (domain.AuthSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.AuthSession{}, false
	}
	return *c.session, true
}

// SetEndpointID records the registered endpoint on the session.
func (c *Client) SetEndpointID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.EndpointID = id
	}
}

// ClearSession drops the stored credentials.
func (c *Client) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// do runs one signaling request. Requests tagged needsToken carry the
// bearer token; a 401 on such a request triggers a refresh cycle and a
// single replay. Requests arriving mid-refresh wait for the cycle to
// settle before being sent.
func (c *Client) do(ctx context.Context, method, path string, body, out any, needsToken bool) error {
	send := func() error {
		return c.withRetry(ctx, func() error {
			return c.once(ctx, method, path, body, out, needsToken)
		})
	}
	if !needsToken {
		return send()
	}

	release, err := c.awaitRefresh(ctx)
	if err != nil {
		return err
	}
	err = send()
	release()
	if err == nil || !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	// The failed request starts (or joins) the refresh cycle and
	// replays in its reserved slot once the cycle settles.
	release, err = c.refreshToken(ctx)
	if err != nil {
		return err
	}
	err = send()
	release()
	return err
}

// awaitRefresh parks until any in-flight refresh settles, then waits
// for this request's turn in the replay order. The returned release
// must be called once the request has been sent so the next parked
// request can go. A failed cycle fails every parked request with
// ErrUnauthorized.
func (c *Client) awaitRefresh(ctx context.Context) (func(), error) {
	c.mu.Lock()
	st := c.refresh
	c.mu.Unlock()
	if st == nil {
		return func() {}, nil
	}
	return st.await(ctx)
}

// refreshToken runs (or joins) a refresh cycle, retrying up to the
// configured attempt budget before giving up. On success it returns
// holding the caller's replay turn.
func (c *Client) refreshToken(ctx context.Context) (func(), error) {
	c.mu.Lock()
	if st := c.refresh; st != nil {
		c.mu.Unlock()
		return st.await(ctx)
	}
	st := &refreshState{done: make(chan struct{})}
	// The triggering request replays first; everyone else queues behind.
	w := st.park()
	c.refresh = st
	sess := c.session
	c.mu.Unlock()

	var err error
	if sess == nil || sess.RefreshToken == "" {
		err = domain.ErrNotLoggedIn
	} else {
		for attempt := 1; attempt <= c.cfg.RefreshAttempts; attempt++ {
			err = c.refreshOnce(ctx, sess.RefreshToken)
			if err == nil {
				break
			}
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("token refresh attempt failed")
			if ctx.Err() != nil {
				break
			}
		}
	}

	c.mu.Lock()
	c.refresh = nil
	c.mu.Unlock()
	st.settle(err)

	if err != nil {
		st.abandon(w)
		return nil, fmt.Errorf("token refresh failed: %w", domain.ErrUnauthorized)
	}
	c.log.Debug().Msg("token refreshed")
	<-w.turn
	return func() { st.finish() }, nil
}

// refreshOnce exchanges the refresh token for fresh credentials via the
// form-encoded oauth endpoint.
func (c *Client) refreshOnce(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("security/oauth/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.basicAuth())

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return fmt.Errorf("unmarshal refresh response: %w", err)
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.AccessToken = payload.AccessToken
		if payload.RefreshToken != "" {
			c.session.RefreshToken = payload.RefreshToken
		}
		c.session.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	c.mu.Unlock()
	return nil
}

// once performs a single HTTP round trip and decodes the response.
func (c *Client) once(ctx context.Context, method, path string, body, out any, needsToken bool) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if needsToken {
		c.mu.Lock()
		if c.session == nil {
			c.mu.Unlock()
			return domain.ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
		c.mu.Unlock()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
}

// transportError maps request-level failures onto the error taxonomy.
func (c *Client) transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%v: %w", urlErr.Err, domain.ErrNoInternetConnection)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrConnection)
}

// statusError maps an HTTP status onto the error taxonomy.
func statusError(code int) error {
	if code == http.StatusUnauthorized {
		return fmt.Errorf("http %d: %w", code, domain.ErrUnauthorized)
	}
	return &domain.HTTPError{Code: code}
}
