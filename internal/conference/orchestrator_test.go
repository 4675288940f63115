package conference

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
	"github.com/meshcall/meshcall/internal/registry"
)

type fakeAuth struct {
	sess domain.AuthSession
	ok   bool
}

func (f *fakeAuth) Session() (domain.AuthSession, bool) { return f.sess, f.ok }

type fakeConfSignaler struct {
	joinErr        error
	publishErr     error
	unpublishErr   error
	viewErr        error
	stopViewErr    error
	metadataErr    error
	snapshot       *domain.ConferenceSnapshot
	sdpAnswer      string
	viewerID       string
	publishCalls   []domain.PublishStreamRequest
	unpublishCalls []domain.UnpublishStreamRequest
	viewCalls      []domain.ViewStreamRequest
	stopViewCalls  []domain.StopViewStreamRequest
	metadataCalls  []domain.UpdateMetadataRequest
	pubCandCalls   []domain.PublishStreamICECandidatesRequest
	viewCandCalls  []domain.ViewStreamICECandidatesRequest
	leaveCalls     []domain.LeaveConferenceRequest
	endCalls       []domain.EndConferenceRequest
}

func (f *fakeConfSignaler) CreateConference(_ context.Context, req domain.CreateConferenceRequest) (domain.ConferenceSummary, error) {
	return domain.ConferenceSummary{ID: req.ConferenceID, Mode: req.Mode, CreatorID: req.CreatorID}, nil
}

func (f *fakeConfSignaler) EndConference(_ context.Context, req domain.EndConferenceRequest) error {
	f.endCalls = append(f.endCalls, req)
	return nil
}

func (f *fakeConfSignaler) JoinConference(_ context.Context, req domain.JoinConferenceRequest) error {
	return f.joinErr
}

func (f *fakeConfSignaler) LeaveConference(_ context.Context, req domain.LeaveConferenceRequest) error {
	f.leaveCalls = append(f.leaveCalls, req)
	return nil
}

func (f *fakeConfSignaler) GetConferences(context.Context) ([]domain.ConferenceSummary, error) {
	return nil, nil
}

func (f *fakeConfSignaler) GetConferenceSummary(_ context.Context, id string) (domain.ConferenceSummary, error) {
	return domain.ConferenceSummary{ID: id}, nil
}

func (f *fakeConfSignaler) GetConferenceDetails(_ context.Context, id string) (*domain.ConferenceDetails, error) {
	return &domain.ConferenceDetails{ID: id, Mode: domain.ConferenceModeRouter, Version: 1}, nil
}

func (f *fakeConfSignaler) GetConferenceSimpleView(_ context.Context, id string) (*domain.ConferenceSnapshot, error) {
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return domain.NewConferenceSnapshot(id, domain.ConferenceModeRouter, 1), nil
}

func (f *fakeConfSignaler) PublishStream(_ context.Context, req domain.PublishStreamRequest) (domain.PublishStreamResponse, error) {
	f.publishCalls = append(f.publishCalls, req)
	if f.publishErr != nil {
		return domain.PublishStreamResponse{}, f.publishErr
	}
	return domain.PublishStreamResponse{SDPAnswer: f.sdpAnswer}, nil
}

func (f *fakeConfSignaler) UnpublishStream(_ context.Context, req domain.UnpublishStreamRequest) error {
	f.unpublishCalls = append(f.unpublishCalls, req)
	return f.unpublishErr
}

func (f *fakeConfSignaler) ViewStream(_ context.Context, req domain.ViewStreamRequest) (domain.ViewStreamResponse, error) {
	f.viewCalls = append(f.viewCalls, req)
	if f.viewErr != nil {
		return domain.ViewStreamResponse{}, f.viewErr
	}
	return domain.ViewStreamResponse{SDPAnswer: f.sdpAnswer, ViewerID: f.viewerID}, nil
}

func (f *fakeConfSignaler) StopViewStream(_ context.Context, req domain.StopViewStreamRequest) error {
	f.stopViewCalls = append(f.stopViewCalls, req)
	return f.stopViewErr
}

func (f *fakeConfSignaler) UpdateConferenceMetadata(_ context.Context, req domain.UpdateMetadataRequest) error {
	f.metadataCalls = append(f.metadataCalls, req)
	return f.metadataErr
}

func (f *fakeConfSignaler) AddPublishStreamICECandidates(_ context.Context, req domain.PublishStreamICECandidatesRequest) error {
	f.pubCandCalls = append(f.pubCandCalls, req)
	return nil
}

func (f *fakeConfSignaler) AddViewStreamICECandidates(_ context.Context, req domain.ViewStreamICECandidatesRequest) error {
	f.viewCandCalls = append(f.viewCandCalls, req)
	return nil
}

type fakeConfMedia struct {
	steps      []string
	enabled    map[domain.TrackKind]bool
	onICE      func(domain.ICECandidate)
	closed     bool
	enabledErr error

	// emitOnOffer fires a gathered candidate during CreateOffer, i.e.
	// before the remote answer lands.
	emitOnOffer string
}

func newFakeConfMedia() *fakeConfMedia {
	return &fakeConfMedia{enabled: map[domain.TrackKind]bool{
		domain.TrackKindAudio: true,
		domain.TrackKindVideo: true,
	}}
}

func (m *fakeConfMedia) CreateOffer(context.Context) (domain.SessionDescription, error) {
	m.steps = append(m.steps, "createOffer")
	if m.emitOnOffer != "" && m.onICE != nil {
		m.onICE(domain.ICECandidate{Candidate: m.emitOnOffer})
	}
	return domain.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (m *fakeConfMedia) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	m.steps = append(m.steps, "createAnswer")
	return domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (m *fakeConfMedia) SetLocalDescription(_ context.Context, d domain.SessionDescription) error {
	m.steps = append(m.steps, "setLocal:"+d.Type)
	return nil
}

func (m *fakeConfMedia) SetRemoteDescription(_ context.Context, d domain.SessionDescription) error {
	m.steps = append(m.steps, "setRemote:"+d.Type)
	return nil
}

func (m *fakeConfMedia) AddICECandidate(domain.ICECandidate) error { return nil }

func (m *fakeConfMedia) OnICECandidate(fn func(domain.ICECandidate)) { m.onICE = fn }

func (m *fakeConfMedia) OnConnected(func()) {}

func (m *fakeConfMedia) SetTrackEnabled(kind domain.TrackKind, enabled bool) error {
	if m.enabledErr != nil {
		return m.enabledErr
	}
	m.enabled[kind] = enabled
	return nil
}

func (m *fakeConfMedia) RemoveTrack(kind domain.TrackKind) error {
	m.steps = append(m.steps, "removeTrack:"+string(kind))
	return nil
}

func (m *fakeConfMedia) AddTrack(kind domain.TrackKind) error {
	m.steps = append(m.steps, "addTrack:"+string(kind))
	return nil
}

func (m *fakeConfMedia) Close() error {
	m.closed = true
	return nil
}

type fakeConfFactory struct {
	sessions    []*fakeConfMedia
	err         error
	emitOnOffer string
}

func (f *fakeConfFactory) NewSession(domain.StreamKind, domain.Role) (domain.MediaSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := newFakeConfMedia()
	m.emitOnOffer = f.emitOnOffer
	f.sessions = append(f.sessions, m)
	return m, nil
}

type confHarness struct {
	orch    *Orchestrator
	sig     *fakeConfSignaler
	factory *fakeConfFactory
	reg     *registry.Registry
	states  map[string][]domain.StreamState
}

func newConfHarness(t *testing.T, cb Callbacks) *confHarness {
	t.Helper()
	h := &confHarness{
		sig:     &fakeConfSignaler{sdpAnswer: "v=0 answer", viewerID: "viewer-1"},
		factory: &fakeConfFactory{},
		reg:     registry.New(zerolog.Nop()),
		states:  make(map[string][]domain.StreamState),
	}
	inner := cb.OnStreamState
	cb.OnStreamState = func(id string, s domain.StreamState) {
		h.states[id] = append(h.states[id], s)
		if inner != nil {
			inner(id, s)
		}
	}
	auth := &fakeAuth{sess: domain.AuthSession{UserID: "user-1", EndpointID: "ep-1"}, ok: true}
	h.orch = New(h.sig, h.factory, h.reg, auth, cb, SequencerConfig{}, zerolog.Nop())
	return h
}

func (h *confHarness) join(t *testing.T) {
	t.Helper()
	if _, err := h.orch.Join(context.Background(), "conf-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestJoinRequiresLogin(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	orch := New(h.sig, h.factory, h.reg, &fakeAuth{}, Callbacks{}, SequencerConfig{}, zerolog.Nop())

	if _, err := orch.Join(context.Background(), "conf-1"); !errors.Is(err, domain.ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestDetailsRequiresConference(t *testing.T) {
	h := newConfHarness(t, Callbacks{})

	if _, err := h.orch.Details(context.Background()); !errors.Is(err, domain.ErrNotInConference) {
		t.Fatalf("err = %v, want ErrNotInConference", err)
	}

	h.join(t)
	details, err := h.orch.Details(context.Background())
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.ID != "conf-1" {
		t.Fatalf("details.ID = %q, want conf-1", details.ID)
	}
}

func TestPublishRequiresConference(t *testing.T) {
	h := newConfHarness(t, Callbacks{})

	if _, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMicAndCam); !errors.Is(err, domain.ErrNotInConference) {
		t.Fatalf("err = %v, want ErrNotInConference", err)
	}
}

func TestPublishNegotiationOrder(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	streamID, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMicAndCam)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if streamID == "" {
		t.Fatal("empty stream id")
	}

	media := h.factory.sessions[0]
	want := []string{"createOffer", "setLocal:offer", "setRemote:answer"}
	if len(media.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", media.steps, want)
	}
	for i := range want {
		if media.steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", media.steps, want)
		}
	}
	if len(h.sig.publishCalls) != 1 || h.sig.publishCalls[0].StreamID != streamID {
		t.Fatalf("publish calls = %+v", h.sig.publishCalls)
	}
	if _, ok := h.reg.Find(streamID); !ok {
		t.Fatal("published stream not registered")
	}
}

func TestPublishBuffersThenFlushesCandidates(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	// A candidate gathered before the answer lands must be buffered and
	// flushed as one batch after negotiation completes.
	h.factory.emitOnOffer = "candidate:early"
	if _, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMicAndCam); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(h.sig.pubCandCalls) != 1 {
		t.Fatalf("candidate calls = %+v, want one flush", h.sig.pubCandCalls)
	}
	flush := h.sig.pubCandCalls[0]
	if len(flush.Candidates) != 1 || flush.Candidates[0].Candidate != "candidate:early" {
		t.Fatalf("flushed candidates = %+v", flush.Candidates)
	}

	// Candidates gathered afterwards trickle directly.
	media := h.factory.sessions[0]
	media.onICE(domain.ICECandidate{Candidate: "candidate:late"})
	if len(h.sig.pubCandCalls) != 2 {
		t.Fatalf("candidate calls = %+v, want flush then trickle", h.sig.pubCandCalls)
	}
	if got := h.sig.pubCandCalls[1].Candidates; len(got) != 1 || got[0].Candidate != "candidate:late" {
		t.Fatalf("trickled candidates = %+v", got)
	}
}

func TestPublishSignalingFailureKeepsEntry(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)
	h.sig.publishErr = domain.ErrConnection

	streamID, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMic)
	var pubErr *domain.PublishStreamError
	if !errors.As(err, &pubErr) || pubErr.Stage != domain.StageSignaling {
		t.Fatalf("err = %v, want signaling-stage publish error", err)
	}
	// The session stays registered so the caller can tear it down.
	if _, ok := h.reg.Find(streamID); !ok {
		t.Fatal("failed publish removed from registry")
	}
	if err := h.orch.UnpublishLocalStream(context.Background(), streamID); err == nil {
		if _, ok := h.reg.Find(streamID); ok {
			t.Fatal("unpublish left session registered")
		}
	}
}

func TestUnpublishAllWithNoStreamsDoesNoSignaling(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	if err := h.orch.UnpublishAllLocalStreams(context.Background()); err != nil {
		t.Fatalf("unpublish all: %v", err)
	}
	if len(h.sig.unpublishCalls) != 0 {
		t.Fatalf("unpublish calls = %d, want 0", len(h.sig.unpublishCalls))
	}
}

func TestUnpublishUnknownStream(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	err := h.orch.UnpublishLocalStream(context.Background(), "nope")
	var missing *domain.MissingPeerConnectionError
	if !errors.As(err, &missing) || missing.SessionID != "nope" {
		t.Fatalf("err = %v, want MissingPeerConnectionError", err)
	}
}

func TestStopRemoteStreamTolerates404(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	if err := h.orch.ViewRemoteStream(context.Background(), "stream-9", "user-2", "ep-2", domain.StreamKindCam); err != nil {
		t.Fatalf("view: %v", err)
	}

	h.sig.stopViewErr = &domain.HTTPError{Code: 404}
	if err := h.orch.StopRemoteStream(context.Background(), "stream-9"); err != nil {
		t.Fatalf("stop after 404: %v", err)
	}
	if _, ok := h.reg.Find("stream-9"); ok {
		t.Fatal("view still registered after stop")
	}
	states := h.states["stream-9"]
	if len(states) == 0 || states[len(states)-1] != domain.StreamStateRemoteDisconnected {
		t.Fatalf("states = %v, want terminal remote disconnected", states)
	}
}

func TestStopRemoteStreamSendsViewerID(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	if err := h.orch.ViewRemoteStream(context.Background(), "stream-9", "user-2", "ep-2", domain.StreamKindCam); err != nil {
		t.Fatalf("view: %v", err)
	}
	if err := h.orch.StopRemoteStream(context.Background(), "stream-9"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(h.sig.stopViewCalls) != 1 || h.sig.stopViewCalls[0].ViewerID != "viewer-1" {
		t.Fatalf("stop calls = %+v, want viewer-1", h.sig.stopViewCalls)
	}
}

func TestToggleMuteRoundTrip(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	streamID, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMicAndCam)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	media := h.factory.sessions[0]

	if err := h.orch.ToggleLocalStream(context.Background(), streamID, domain.TrackKindAudio, domain.MetadataSet); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if media.enabled[domain.TrackKindAudio] {
		t.Fatal("audio track still enabled after mute")
	}
	if len(h.sig.metadataCalls) != 1 {
		t.Fatalf("metadata calls = %d, want 1", len(h.sig.metadataCalls))
	}
	wantKey := domain.TrackMutedKey(domain.TrackKindAudio, streamID)
	if h.sig.metadataCalls[0].Key != wantKey || h.sig.metadataCalls[0].Operation != domain.MetadataSet {
		t.Fatalf("metadata call = %+v, want SET %s", h.sig.metadataCalls[0], wantKey)
	}
	if snap, _ := h.orch.Current(); !snap.MutedAudioStreams[streamID] {
		t.Fatal("snapshot missing muted audio stream")
	}

	if err := h.orch.ToggleLocalStream(context.Background(), streamID, domain.TrackKindAudio, domain.MetadataRemove); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if !media.enabled[domain.TrackKindAudio] {
		t.Fatal("audio track disabled after unmute")
	}
	if snap, _ := h.orch.Current(); snap.MutedAudioStreams[streamID] {
		t.Fatal("snapshot kept muted audio stream")
	}
}

func TestToggleMuteRollsBackOnSignalingFailure(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	streamID, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMic)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	media := h.factory.sessions[0]
	h.sig.metadataErr = domain.ErrConnection

	if err := h.orch.ToggleLocalStream(context.Background(), streamID, domain.TrackKindAudio, domain.MetadataSet); err == nil {
		t.Fatal("expected mute failure")
	}
	if !media.enabled[domain.TrackKindAudio] {
		t.Fatal("mute failure left track masked")
	}
	if snap, _ := h.orch.Current(); snap.MutedAudioStreams[streamID] {
		t.Fatal("mute failure recorded in snapshot")
	}
}

func TestLeaveTearsDownBeforeSignaling(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	if _, err := h.orch.PublishLocalStream(context.Background(), domain.StreamKindMicAndCam); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.orch.Leave(context.Background(), "done"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if !h.factory.sessions[0].closed {
		t.Fatal("media session not closed on leave")
	}
	if h.reg.Len() != 0 {
		t.Fatalf("registry has %d live sessions after leave", h.reg.Len())
	}
	if _, ok := h.orch.Current(); ok {
		t.Fatal("conference state kept after leave")
	}
	if len(h.sig.leaveCalls) != 1 || h.sig.leaveCalls[0].Reason != "done" {
		t.Fatalf("leave calls = %+v", h.sig.leaveCalls)
	}
}

func TestRejoinReentersLastConference(t *testing.T) {
	var rejoined *domain.ConferenceSnapshot
	h := newConfHarness(t, Callbacks{
		OnRejoined: func(s *domain.ConferenceSnapshot) { rejoined = s },
	})
	h.join(t)

	snap, err := h.orch.Rejoin(context.Background())
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoined != snap {
		t.Fatal("rejoin callback missing or wrong snapshot")
	}
	if cur, ok := h.orch.Current(); !ok || cur.ID != "conf-1" {
		t.Fatalf("current = %+v, want conf-1", cur)
	}
}

func TestEventJoinedUpdatesSnapshotAndNotifies(t *testing.T) {
	var joined []domain.ParticipantEndpoint
	h := newConfHarness(t, Callbacks{
		OnParticipantJoined: func(p domain.ParticipantEndpoint) { joined = append(joined, p) },
	})
	h.join(t)

	h.orch.HandleEvent(joinedEvent(1, "ep-2"))

	if len(joined) != 1 || joined[0].ID != "ep-2" {
		t.Fatalf("joined = %+v", joined)
	}
	snap, _ := h.orch.Current()
	if _, ok := snap.Participant("ep-2"); !ok {
		t.Fatal("participant missing from snapshot")
	}
}

func TestEventLeftDropsParticipantViews(t *testing.T) {
	var left []string
	h := newConfHarness(t, Callbacks{
		OnParticipantLeft: func(id string) { left = append(left, id) },
	})
	h.join(t)

	h.orch.HandleEvent(joinedEvent(1, "ep-2"))
	if err := h.orch.ViewRemoteStream(context.Background(), "stream-9", "user-2", "ep-2", domain.StreamKindCam); err != nil {
		t.Fatalf("view: %v", err)
	}

	v := 2
	h.orch.HandleEvent(&domain.ConferenceLeft{
		ConferenceEventBase: domain.ConferenceEventBase{
			Type:           domain.TypeConferenceLeft,
			ConferenceID:   "conf-1",
			Version:        &v,
			UserEndpointID: "ep-2",
		},
	})

	if len(left) != 1 || left[0] != "ep-2" {
		t.Fatalf("left = %v", left)
	}
	if _, ok := h.reg.Find("stream-9"); ok {
		t.Fatal("departed participant's view still registered")
	}
	snap, _ := h.orch.Current()
	if _, ok := snap.Participant("ep-2"); ok {
		t.Fatal("departed participant still in snapshot")
	}
}

func TestEventEndedClearsConference(t *testing.T) {
	var endedID, endedReason string
	h := newConfHarness(t, Callbacks{
		OnConferenceEnded: func(id, reason string) { endedID, endedReason = id, reason },
	})
	h.join(t)

	v := 1
	h.orch.HandleEvent(&domain.ConferenceEnded{
		ConferenceEventBase: domain.ConferenceEventBase{
			Type:         domain.TypeConferenceEnded,
			ConferenceID: "conf-1",
			Version:      &v,
		},
		Reason: "host ended",
	})

	if endedID != "conf-1" || endedReason != "host ended" {
		t.Fatalf("ended callback = (%q, %q)", endedID, endedReason)
	}
	if _, ok := h.orch.Current(); ok {
		t.Fatal("conference state kept after end event")
	}
}

func TestEventMetadataMuteUpdatesSnapshot(t *testing.T) {
	var mutedKind domain.TrackKind
	var mutedStream string
	var muted bool
	h := newConfHarness(t, Callbacks{
		OnTrackMuted: func(kind domain.TrackKind, streamID string, m bool) {
			mutedKind, mutedStream, muted = kind, streamID, m
		},
	})
	h.join(t)

	v := 1
	h.orch.HandleEvent(&domain.ConferenceMetadataUpdated{
		ConferenceEventBase: domain.ConferenceEventBase{
			Type:           domain.TypeConferenceMetadata,
			ConferenceID:   "conf-1",
			Version:        &v,
			UserEndpointID: "ep-2",
		},
		Key:       "TRACK_MUTED/video/stream-9",
		Operation: domain.MetadataSet,
	})

	if mutedKind != domain.TrackKindVideo || mutedStream != "stream-9" || !muted {
		t.Fatalf("mute callback = (%v, %q, %v)", mutedKind, mutedStream, muted)
	}
	snap, _ := h.orch.Current()
	if !snap.MutedVideoStreams["stream-9"] {
		t.Fatal("snapshot missing muted video stream")
	}
}

func TestEventHoldMetadata(t *testing.T) {
	var held bool
	h := newConfHarness(t, Callbacks{
		OnHoldChanged: func(onHold bool) { held = onHold },
	})
	h.join(t)

	v := 1
	h.orch.HandleEvent(&domain.ConferenceMetadataUpdated{
		ConferenceEventBase: domain.ConferenceEventBase{
			Type:           domain.TypeConferenceMetadata,
			ConferenceID:   "conf-1",
			Version:        &v,
			UserEndpointID: "ep-2",
		},
		Key:       "ON_HOLD/user-2",
		Operation: domain.MetadataSet,
		Value:     []byte(`"true"`),
	})

	if !held {
		t.Fatal("hold callback not raised")
	}
	snap, _ := h.orch.Current()
	if !snap.OnHold {
		t.Fatal("snapshot not on hold")
	}
}

func TestSetHoldUpdatesMetadata(t *testing.T) {
	h := newConfHarness(t, Callbacks{})
	h.join(t)

	if err := h.orch.SetHold(context.Background(), true); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if len(h.sig.metadataCalls) != 1 {
		t.Fatalf("metadata calls = %d, want 1", len(h.sig.metadataCalls))
	}
	call := h.sig.metadataCalls[0]
	if call.Key != "ON_HOLD/user-1" || call.Operation != domain.MetadataSet {
		t.Fatalf("metadata call = %+v", call)
	}
	snap, _ := h.orch.Current()
	if !snap.OnHold {
		t.Fatal("snapshot not on hold")
	}
}
