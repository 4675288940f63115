// Package client wires the signaling transport, event channel, media
// factory and orchestrators into the single SDK entry point.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/api"
	"github.com/meshcall/meshcall/internal/call"
	"github.com/meshcall/meshcall/internal/conference"
	"github.com/meshcall/meshcall/internal/config"
	"github.com/meshcall/meshcall/internal/domain"
	"github.com/meshcall/meshcall/internal/endpoint"
	"github.com/meshcall/meshcall/internal/events"
	"github.com/meshcall/meshcall/internal/registry"
	"github.com/meshcall/meshcall/internal/rtc"
)

// Callbacks aggregates the application-facing notifications of the
// whole SDK. Nil callbacks are skipped.
type Callbacks struct {
	Call       call.Callbacks
	Conference conference.Callbacks

	// OnSnapshotRequested fires when a remote agent asks this endpoint
	// for a camera snapshot.
	OnSnapshotRequested func(ev domain.SnapshotEvent)

	// OnDisconnect fires when the event channel drops unexpectedly.
	OnDisconnect func(err error)

	// OnKeepaliveFailed fires when an endpoint keepalive round trip
	// fails, usually meaning connectivity was lost.
	OnKeepaliveFailed func(err error)
}

// Client is the SDK façade. Construct it with New, call Login, then
// use the call and conference surfaces.
type Client struct {
	cfg *config.Config
	log zerolog.Logger

	api     *api.Client
	channel *events.Channel
	ep      *endpoint.Manager
	reg     *registry.Registry
	media   *rtc.Factory
	calls   *call.Orchestrator
	conf    *conference.Orchestrator
	cb      Callbacks
}

// New wires a client from configuration. Nothing talks to the network
// until Login.
func New(cfg *config.Config, cb Callbacks, log zerolog.Logger) *Client {
	c := &Client{
		cfg: cfg,
		cb:  cb,
		log: log.With().Str("module", "client").Logger(),
	}

	c.api = api.NewClient(api.Config{
		BaseURL:         cfg.BaseURL,
		ClientID:        cfg.ClientID,
		Timeout:         cfg.HTTPTimeout,
		RefreshAttempts: cfg.RefreshAttempts,
		Retry: api.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
		},
	}, log)

	c.reg = registry.New(log)
	c.media = rtc.NewFactory(log)
	c.ep = endpoint.New(c.api, cfg.KeepAliveTTL, log)
	c.ep.OnError(func(err error) {
		if c.cb.OnKeepaliveFailed != nil {
			c.cb.OnKeepaliveFailed(err)
		}
	})

	c.calls = call.New(c.api, c.media, c.reg, c.api, cb.Call, log)
	c.conf = conference.New(c.api, c.media, c.reg, c.api, cb.Conference, conference.SequencerConfig{
		Wait:        cfg.EventRetryWait,
		MaxAttempts: cfg.EventRetryAttempts,
	}, log)

	c.channel = events.NewChannel(cfg.EventsURL, func() string {
		sess, ok := c.api.Session()
		if !ok {
			return ""
		}
		return sess.AccessToken
	}, domain.EventHandlers{
		OnConferenceEvent: c.conf.HandleEvent,
		OnCallEvent: func(ev domain.CallEvent) {
			c.calls.HandleEvent(context.Background(), ev)
		},
		OnSnapshotEvent: func(ev domain.SnapshotEvent) {
			if c.cb.OnSnapshotRequested != nil {
				c.cb.OnSnapshotRequested(ev)
			}
		},
		OnDisconnect: func(err error) {
			if c.cb.OnDisconnect != nil {
				c.cb.OnDisconnect(err)
			}
		},
	}, log)

	return c
}

// SetVideoSink directs depacketized remote H264 video to w.
func (c *Client) SetVideoSink(w io.Writer) { c.media.SetVideoSink(w) }

// Calls exposes the direct-call surface.
func (c *Client) Calls() *call.Orchestrator { return c.calls }

// Conference exposes the conference surface.
func (c *Client) Conference() *conference.Orchestrator { return c.conf }

// Session returns the current login session, if any.
func (c *Client) Session() (domain.AuthSession, bool) { return c.api.Session() }

// Login authenticates, registers an endpoint, fetches ICE servers and
// brings up the event channel subscribed to this endpoint's topic.
func (c *Client) Login(ctx context.Context, username, password string, params map[string]string) error {
	sess, err := c.api.Login(ctx, domain.LoginRequest{
		Username: username,
		Password: password,
		ClientID: c.cfg.ClientID,
		Params:   params,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	endpointID, err := c.ep.Create(ctx, sess.UserID)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.api.SetEndpointID(endpointID)

	servers, err := c.api.GetICEServers(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.media.SetICEServers(servers)

	if err := c.channel.Connect(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := c.channel.Subscribe(events.EndpointTopic(endpointID)); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c.log.Info().Str("user", sess.UserID).Str("endpoint", endpointID).Msg("logged in")
	return nil
}

// Logout tears everything down: leave the conference if joined,
// unregister the endpoint, close the event channel and drop the
// session. Local state clears even when signaling calls fail.
func (c *Client) Logout(ctx context.Context) error {
	var firstErr error

	if _, joined := c.conf.Current(); joined {
		if err := c.conf.Leave(ctx, "logout"); err != nil {
			firstErr = err
		}
	}
	if err := c.ep.Unregister(ctx, "logout"); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.channel.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.reg.RemoveAll()
	c.api.ClearSession()

	c.log.Info().Msg("logged out")
	return firstErr
}

// OnPause prepares for the application going to the background: the
// conference is left gracefully so other participants see a clean exit.
func (c *Client) OnPause(ctx context.Context) error {
	if _, joined := c.conf.Current(); !joined {
		return nil
	}
	return c.conf.Leave(ctx, "paused")
}

// OnResume restores service after a pause. If the endpoint survived
// server-side the channel reconnects and the last conference is
// rejoined; otherwise a fresh endpoint is registered first.
func (c *Client) OnResume(ctx context.Context) error {
	sess, ok := c.api.Session()
	if !ok {
		return domain.ErrNotLoggedIn
	}

	if err := c.ep.Probe(ctx); err != nil {
		c.log.Warn().Err(err).Msg("endpoint expired while paused, registering a new one")
		endpointID, err := c.ep.Create(ctx, sess.UserID)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		c.api.SetEndpointID(endpointID)
	} else {
		c.ep.StartKeepalive()
	}

	if err := c.channel.Reconnect(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if err := c.channel.Subscribe(events.EndpointTopic(c.ep.EndpointID())); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	if _, err := c.conf.Rejoin(ctx); err != nil {
		if errors.Is(err, domain.ErrNotInConference) {
			return nil
		}
		return fmt.Errorf("resume rejoin: %w", err)
	}
	return nil
}

// RespondToCameraRequest answers a remote agent's camera snapshot
// request.
func (c *Client) RespondToCameraRequest(ctx context.Context, snapshotID string, accepted bool) error {
	sess, ok := c.api.Session()
	if !ok {
		return domain.ErrNotLoggedIn
	}
	return c.api.CameraRequestRespond(ctx, domain.CameraRespondRequest{
		SnapshotID:     snapshotID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Accepted:       accepted,
	})
}

// UploadSnapshot sends an acquired camera frame to the server.
func (c *Client) UploadSnapshot(ctx context.Context, snapshotID, snapshotType string, data []byte) error {
	sess, ok := c.api.Session()
	if !ok {
		return domain.ErrNotLoggedIn
	}
	return c.api.UploadSnapshot(ctx, domain.SnapshotUpload{
		SnapshotID:     snapshotID,
		SnapshotSuffix: "jpg",
		SnapshotType:   snapshotType,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Data:           data,
	})
}
