// Package endpoint manages the registered user endpoint and the
// keepalive loop that keeps it alive on the server.
package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// keepAliveMargin is subtracted from the server TTL so the refresh
// lands before the endpoint expires.
const keepAliveMargin = 5 * time.Second

// Manager registers an endpoint and keeps it alive until unregistered.
type Manager struct {
	signaler domain.EndpointSignaler
	ttl      time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	userID     string
	endpointID string
	interval   time.Duration
	stop       chan struct{}
	onError    func(error)
}

// New builds a manager requesting the given TTL at registration.
func New(signaler domain.EndpointSignaler, ttl time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		signaler: signaler,
		ttl:      ttl,
		log:      log.With().Str("module", "endpoint").Logger(),
	}
}

// OnError registers a callback for keepalive failures.
func (m *Manager) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// EndpointID returns the registered endpoint id, empty if none.
func (m *Manager) EndpointID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpointID
}

// Create registers a fresh endpoint for the user and starts the
// keepalive loop. The endpoint id is generated locally.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	resp, err := m.signaler.CreateEndpoint(ctx, domain.CreateEndpointRequest{
		UserID:         userID,
		UserEndpointID: id,
		KeepAliveSec:   int(m.ttl.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("register endpoint: %w", err)
	}

	m.mu.Lock()
	m.userID = userID
	m.endpointID = resp.UserEndpointID
	m.interval = KeepAliveInterval(resp.KeepAliveSec)
	m.mu.Unlock()

	m.log.Info().Str("endpoint", resp.UserEndpointID).Dur("interval", m.interval).Msg("endpoint registered")
	m.StartKeepalive()
	return resp.UserEndpointID, nil
}

// KeepAliveInterval derives the refresh period from the server TTL.
func KeepAliveInterval(ttlSec int) time.Duration {
	interval := time.Duration(ttlSec)*time.Second - keepAliveMargin
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// StartKeepalive launches the keepalive loop, replacing a running one.
func (m *Manager) StartKeepalive() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
	}
	stop := make(chan struct{})
	m.stop = stop
	interval := m.interval
	m.mu.Unlock()

	go m.loop(stop, interval)
}

// StopKeepalive halts the keepalive loop if it is running.
func (m *Manager) StopKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Manager) loop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := m.Probe(ctx)
			cancel()
			if err != nil {
				m.log.Warn().Err(err).Msg("keepalive failed")
				m.mu.Lock()
				fn := m.onError
				m.mu.Unlock()
				if fn != nil {
					fn(err)
				}
			}
		}
	}
}

// Probe sends a single keepalive round trip. A failure means the
// endpoint may have expired server-side.
func (m *Manager) Probe(ctx context.Context) error {
	m.mu.Lock()
	userID, endpointID := m.userID, m.endpointID
	m.mu.Unlock()

	if endpointID == "" {
		return domain.ErrEndpointNotCreated
	}
	if err := m.signaler.KeepAlive(ctx, domain.KeepAliveRequest{
		UserID:         userID,
		UserEndpointID: endpointID,
	}); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	return nil
}

// Unregister stops the keepalive loop and releases the endpoint. The
// loop stops even when the signaling call fails.
func (m *Manager) Unregister(ctx context.Context, reason string) error {
	m.StopKeepalive()

	m.mu.Lock()
	userID, endpointID := m.userID, m.endpointID
	m.endpointID = ""
	m.mu.Unlock()

	if endpointID == "" {
		return nil
	}
	if err := m.signaler.UnregisterEndpoint(ctx, domain.UnregisterEndpointRequest{
		UserID:         userID,
		UserEndpointID: endpointID,
		Reason:         reason,
	}); err != nil {
		return fmt.Errorf("unregister endpoint: %w", err)
	}
	m.log.Info().Str("endpoint", endpointID).Msg("endpoint unregistered")
	return nil
}
