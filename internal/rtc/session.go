package rtc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// Session wraps a pion PeerConnection as a domain.MediaSession. Local
// sessions publish sample tracks the embedding application feeds via
// WriteSample; remote sessions receive tracks and drain or sink them.
type Session struct {
	pc   *pion.PeerConnection
	kind domain.StreamKind
	role domain.Role
	log  zerolog.Logger

	mu            sync.Mutex
	tracks        map[domain.TrackKind]*pion.TrackLocalStaticSample
	senders       map[domain.TrackKind]*pion.RTPSender
	enabled       map[domain.TrackKind]bool
	onICE         func(domain.ICECandidate)
	onConnected   func()
	remoteSet     bool
	pendingRemote []domain.ICECandidate
}

func newSession(pc *pion.PeerConnection, kind domain.StreamKind, role domain.Role, sink io.Writer, log zerolog.Logger) (*Session, error) {
	s := &Session{
		pc:      pc,
		kind:    kind,
		role:    role,
		log:     log.With().Str("role", role.String()).Str("kind", string(kind)).Logger(),
		tracks:  make(map[domain.TrackKind]*pion.TrackLocalStaticSample),
		senders: make(map[domain.TrackKind]*pion.RTPSender),
		enabled: make(map[domain.TrackKind]bool),
	}

	if role == domain.RoleLocal {
		if kind.HasAudio() {
			if err := s.addLocalTrack(domain.TrackKindAudio); err != nil {
				return nil, err
			}
		}
		if kind.HasVideo() {
			if err := s.addLocalTrack(domain.TrackKindVideo); err != nil {
				return nil, err
			}
		}
	} else {
		if kind.HasAudio() {
			if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return nil, fmt.Errorf("add audio transceiver: %w", err)
			}
		}
		if kind.HasVideo() {
			if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return nil, fmt.Errorf("add video transceiver: %w", err)
			}
		}
		pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
			s.log.Debug().Str("track", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
			if track.Kind() == pion.RTPCodecTypeVideo && sink != nil &&
				strings.EqualFold(track.Codec().MimeType, pion.MimeTypeH264) {
				go s.readH264Track(track, sink)
				return
			}
			go drainTrack(track)
		})
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			s.log.Debug().Msg("ice gathering complete")
			return
		}
		j := c.ToJSON()
		if isLoopback(j.Candidate) {
			return
		}
		cand := domain.ICECandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			cand.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			cand.SDPMLineIndex = int(*j.SDPMLineIndex)
		}
		s.mu.Lock()
		fn := s.onICE
		s.mu.Unlock()
		if fn != nil {
			fn(cand)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("peer connection state")
		if state == pion.PeerConnectionStateConnected {
			s.mu.Lock()
			fn := s.onConnected
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})

	return s, nil
}

func (s *Session) addLocalTrack(kind domain.TrackKind) error {
	var codec pion.RTPCodecCapability
	if kind == domain.TrackKindAudio {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	} else {
		codec = pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000}
	}
	track, err := pion.NewTrackLocalStaticSample(codec, string(kind), "meshcall")
	if err != nil {
		return fmt.Errorf("create %s track: %w", kind, err)
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}
	go drainRTCP(sender)

	s.mu.Lock()
	s.tracks[kind] = track
	s.senders[kind] = sender
	s.enabled[kind] = true
	s.mu.Unlock()
	return nil
}

// WriteSample feeds one encoded media sample into a local track.
// Samples for a disabled track are silently dropped.
func (s *Session) WriteSample(kind domain.TrackKind, data []byte, duration time.Duration) error {
	s.mu.Lock()
	track := s.tracks[kind]
	enabled := s.enabled[kind]
	sending := s.senders[kind] != nil
	s.mu.Unlock()

	if track == nil {
		return fmt.Errorf("no %s track on this session", kind)
	}
	if !enabled || !sending {
		return nil
	}
	return track.WriteSample(media.Sample{Data: data, Duration: duration})
}

func (s *Session) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (s *Session) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (s *Session) SetLocalDescription(ctx context.Context, desc domain.SessionDescription) error {
	if err := s.pc.SetLocalDescription(toPion(desc)); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

// SetRemoteDescription applies the remote SDP and flushes any remote
// candidates that arrived before it.
func (s *Session) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(toPion(desc)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	s.mu.Lock()
	s.remoteSet = true
	pending := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.addCandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
	return nil
}

// AddICECandidate applies a remote candidate, buffering it if the
// remote description is not set yet.
func (s *Session) AddICECandidate(c domain.ICECandidate) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.pendingRemote = append(s.pendingRemote, c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.addCandidate(c)
}

func (s *Session) addCandidate(c domain.ICECandidate) error {
	mid := c.SDPMid
	mLine := uint16(c.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mLine,
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (s *Session) OnICECandidate(fn func(domain.ICECandidate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onICE = fn
}

func (s *Session) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = fn
}

// SetTrackEnabled masks or unmasks a local track without renegotiation.
func (s *Session) SetTrackEnabled(kind domain.TrackKind, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[kind]; !ok {
		return fmt.Errorf("no %s track on this session", kind)
	}
	s.enabled[kind] = enabled
	return nil
}

// RemoveTrack stops sending a local track entirely.
func (s *Session) RemoveTrack(kind domain.TrackKind) error {
	s.mu.Lock()
	sender := s.senders[kind]
	delete(s.senders, kind)
	s.mu.Unlock()

	if sender == nil {
		return fmt.Errorf("no %s sender on this session", kind)
	}
	if err := s.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("remove %s track: %w", kind, err)
	}
	return nil
}

// AddTrack restores a previously removed local track.
func (s *Session) AddTrack(kind domain.TrackKind) error {
	s.mu.Lock()
	track := s.tracks[kind]
	_, sending := s.senders[kind]
	s.mu.Unlock()

	if track == nil {
		return fmt.Errorf("no %s track on this session", kind)
	}
	if sending {
		return nil
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("re-add %s track: %w", kind, err)
	}
	go drainRTCP(sender)

	s.mu.Lock()
	s.senders[kind] = sender
	s.mu.Unlock()
	return nil
}

func (s *Session) Close() error {
	return s.pc.Close()
}

// readH264Track depacketizes the RTP stream into Annex-B NAL units on w.
func (s *Session) readH264Track(track *pion.TrackRemote, w io.Writer) {
	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	depack := NewH264Depacketizer()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		for _, nalu := range depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
			if len(nalu) == 0 {
				continue
			}
			w.Write(startCode)
			w.Write(nalu)
		}
	}
}

func drainTrack(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func toPion(desc domain.SessionDescription) pion.SessionDescription {
	t := pion.SDPTypeOffer
	if desc.Type == "answer" {
		t = pion.SDPTypeAnswer
	}
	return pion.SessionDescription{Type: t, SDP: desc.SDP}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
