package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/client"
	"github.com/meshcall/meshcall/internal/conference"
	"github.com/meshcall/meshcall/internal/config"
	"github.com/meshcall/meshcall/internal/domain"
)

const helpText = `meshcall - join a conference or place a call from the terminal

Usage:
  meshcall -conference <id>          join a conference and publish mic+cam
  meshcall -call <target-user>       place a direct call

Configuration comes from meshcall.yaml, a .env file or MESHCALL_*
environment variables (MESHCALL_USERNAME, MESHCALL_PASSWORD,
MESHCALL_BASE_URL, ...).

Remote H264 video is written raw to stdout; pipe to ffplay for playback:

  meshcall -conference demo | ffplay -f h264 -
`

func main() {
	conferenceID := flag.String("conference", "", "conference id to join")
	callTarget := flag.String("call", "", "user id to call")
	flag.Usage = func() { fmt.Fprint(os.Stderr, helpText) }
	flag.Parse()

	if (*conferenceID == "") == (*callTarget == "") {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	cb := client.Callbacks{
		Conference: conference.Callbacks{
			OnParticipantJoined: func(p domain.ParticipantEndpoint) {
				log.Info().Str("user", p.UserID).Str("endpoint", p.ID).Msg("participant joined")
			},
			OnParticipantLeft: func(endpointID string) {
				log.Info().Str("endpoint", endpointID).Msg("participant left")
			},
			OnStreamPublished: func(ev *domain.ConferenceStreamPublished) {
				log.Info().Str("stream", ev.StreamID).Str("kind", string(ev.StreamKind)).Msg("remote stream published")
			},
			OnConferenceEnded: func(id, reason string) {
				log.Info().Str("conference", id).Str("reason", reason).Msg("conference ended")
				cancel()
			},
			OnError: func(err error) {
				log.Warn().Err(err).Msg("conference error")
			},
		},
		OnDisconnect: func(err error) {
			log.Warn().Err(err).Msg("event channel lost")
			cancel()
		},
		OnKeepaliveFailed: func(err error) {
			log.Warn().Err(err).Msg("keepalive failed")
		},
	}
	cb.Call.OnRinging = func(callID string) {
		log.Info().Str("call", callID).Msg("ringing")
	}
	cb.Call.OnConnected = func(callID string) {
		log.Info().Str("call", callID).Msg("call connected")
	}
	cb.Call.OnEnded = func(callID, reason string) {
		log.Info().Str("call", callID).Str("reason", reason).Msg("call ended")
		cancel()
	}
	cb.Call.OnRejected = func(callID, reason string) {
		log.Info().Str("call", callID).Str("reason", reason).Msg("call rejected")
		cancel()
	}

	c := client.New(cfg, cb, log)
	c.SetVideoSink(os.Stdout)
	if err := c.Login(ctx, cfg.Username, cfg.Password, nil); err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}

	switch {
	case *conferenceID != "":
		if err := runConference(ctx, c, *conferenceID, log); err != nil {
			log.Error().Err(err).Msg("conference failed")
		}
	case *callTarget != "":
		if err := runCall(ctx, c, *callTarget, log); err != nil {
			log.Error().Err(err).Msg("call failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer shutdownCancel()
	if err := c.Logout(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("logout failed")
	}
}

func runConference(ctx context.Context, c *client.Client, id string, log zerolog.Logger) error {
	snap, err := c.Conference().Join(ctx, id)
	if err != nil {
		return fmt.Errorf("join %s: %w", id, err)
	}
	log.Info().Str("conference", snap.ID).Int("participants", len(snap.Participants)).Msg("joined")

	streamID, err := c.Conference().PublishLocalStream(ctx, domain.StreamKindMicAndCam)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Info().Str("stream", streamID).Msg("publishing mic and cam")

	// View everything already in the room.
	for _, p := range snap.Participants {
		for _, s := range p.Streams {
			if err := c.Conference().ViewRemoteStream(ctx, s.ID, p.UserID, p.ID, s.Kind); err != nil {
				log.Warn().Err(err).Str("stream", s.ID).Msg("view failed")
			}
		}
	}

	<-ctx.Done()
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Conference().Leave(leaveCtx, "shutdown")
}

func runCall(ctx context.Context, c *client.Client, target string, log zerolog.Logger) error {
	callID, err := c.Calls().Start(ctx, target, domain.StreamKindMic, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", target, err)
	}
	log.Info().Str("call", callID).Str("target", target).Msg("calling")

	<-ctx.Done()
	if _, active := c.Calls().Active(); active {
		hangupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.Calls().Hangup(hangupCtx, callID, "shutdown")
	}
	return nil
}
