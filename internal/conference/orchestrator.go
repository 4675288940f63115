// Package conference drives multi-party conference flows: joining,
// publishing and viewing streams, metadata-based mute/hold, and ordered
// application of server-pushed conference events.
package conference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
	"github.com/meshcall/meshcall/internal/registry"
)

// AuthProvider exposes the current login session.
type AuthProvider interface {
	Session() (domain.AuthSession, bool)
}

// Callbacks notify the embedding application of conference activity.
// Nil callbacks are skipped.
type Callbacks struct {
	OnParticipantJoined func(p domain.ParticipantEndpoint)
	OnParticipantLeft   func(endpointID string)
	OnConferenceEnded   func(conferenceID, reason string)
	OnStreamPublished   func(ev *domain.ConferenceStreamPublished)
	OnStreamUnpublished func(ev *domain.ConferenceStreamUnpublished)
	OnTrackMuted        func(kind domain.TrackKind, streamID string, muted bool)
	OnHoldChanged       func(onHold bool)
	OnStreamMetadata    func(ev *domain.ConferenceStreamMetadataUpdated)
	OnNetworkIndicator  func(ev *domain.ConferenceNetworkIndicator)
	OnUnknownEvent      func(ev *domain.ConferenceUnknown)
	OnStreamState       func(streamID string, state domain.StreamState)
	OnRejoined          func(snapshot *domain.ConferenceSnapshot)
	OnError             func(err error)
}

// Orchestrator owns the conference the endpoint is currently in.
type Orchestrator struct {
	signaler domain.ConferenceSignaler
	media    domain.MediaFactory
	reg      *registry.Registry
	auth     AuthProvider
	log      zerolog.Logger
	cb       Callbacks
	seq      *Sequencer

	mu         sync.Mutex
	current    *domain.ConferenceSnapshot
	lastJoined string
	viewers    map[string]string
	trickle    map[string]bool
}

// New builds a conference orchestrator with its event sequencer.
func New(signaler domain.ConferenceSignaler, media domain.MediaFactory, reg *registry.Registry, auth AuthProvider, cb Callbacks, seqCfg SequencerConfig, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		signaler: signaler,
		media:    media,
		reg:      reg,
		auth:     auth,
		cb:       cb,
		log:      log.With().Str("module", "conference").Logger(),
		viewers:  make(map[string]string),
		trickle:  make(map[string]bool),
	}
	o.seq = NewSequencer(seqCfg,
		func() string {
			sess, _ := auth.Session()
			return sess.EndpointID
		},
		func(ev domain.ConferenceEvent) { o.apply(context.Background(), ev) },
		func(err error) { o.notifyError(err) },
		log,
	)
	return o
}

// HandleEvent feeds a received conference event through the sequencer.
func (o *Orchestrator) HandleEvent(ev domain.ConferenceEvent) {
	o.seq.Enqueue(ev)
}

// Current returns the snapshot of the joined conference, if any.
func (o *Orchestrator) Current() (*domain.ConferenceSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.current != nil
}

// Details fetches the full server-side document of the joined conference.
func (o *Orchestrator) Details(ctx context.Context) (*domain.ConferenceDetails, error) {
	conferenceID, err := o.conferenceID()
	if err != nil {
		return nil, err
	}
	details, err := o.signaler.GetConferenceDetails(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("get conference details: %w", err)
	}
	return details, nil
}

func (o *Orchestrator) session() (domain.AuthSession, error) {
	sess, ok := o.auth.Session()
	if !ok {
		return domain.AuthSession{}, domain.ErrNotLoggedIn
	}
	if sess.EndpointID == "" {
		return domain.AuthSession{}, domain.ErrEndpointNotCreated
	}
	return sess, nil
}

func (o *Orchestrator) conferenceID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return "", domain.ErrNotInConference
	}
	return o.current.ID, nil
}

// Create asks the server for a new conference.
func (o *Orchestrator) Create(ctx context.Context, id string, mode domain.ConferenceMode) (domain.ConferenceSummary, error) {
	sess, err := o.session()
	if err != nil {
		return domain.ConferenceSummary{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	summary, err := o.signaler.CreateConference(ctx, domain.CreateConferenceRequest{
		ConferenceID: id,
		CreatorID:    sess.UserID,
		Mode:         mode,
	})
	if err != nil {
		return domain.ConferenceSummary{}, fmt.Errorf("create conference: %w", err)
	}
	return summary, nil
}

// Join enters a conference and activates the event sequencer at the
// version the join snapshot reports. Events received while joining are
// replayed afterwards.
func (o *Orchestrator) Join(ctx context.Context, id string) (*domain.ConferenceSnapshot, error) {
	sess, err := o.session()
	if err != nil {
		return nil, err
	}

	if err := o.signaler.JoinConference(ctx, domain.JoinConferenceRequest{
		ConferenceID:   id,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
	}); err != nil {
		return nil, fmt.Errorf("join conference: %w", err)
	}

	snap, err := o.signaler.GetConferenceSimpleView(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("join snapshot: %w", err)
	}

	o.mu.Lock()
	o.current = snap
	o.lastJoined = id
	o.mu.Unlock()

	o.seq.Begin(snap.Version)
	o.log.Info().Str("conference", id).Int("version", snap.Version).Msg("joined conference")
	return snap, nil
}

// Leave exits the conference. All local media is shut down first; a
// signaling failure is reported only after cleanup completed.
func (o *Orchestrator) Leave(ctx context.Context, reason string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	id, err := o.conferenceID()
	if err != nil {
		return err
	}

	o.shutdownStreams(ctx, sess, id)

	sigErr := o.signaler.LeaveConference(ctx, domain.LeaveConferenceRequest{
		ConferenceID:   id,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Reason:         reason,
	})

	o.clearConference()
	if sigErr != nil {
		return fmt.Errorf("leave conference: %w", sigErr)
	}
	return nil
}

// End terminates the conference for everyone. Cleanup runs regardless
// of the signaling outcome.
func (o *Orchestrator) End(ctx context.Context, reason string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	id, err := o.conferenceID()
	if err != nil {
		return err
	}

	o.shutdownStreams(ctx, sess, id)

	sigErr := o.signaler.EndConference(ctx, domain.EndConferenceRequest{
		ConferenceID:   id,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Reason:         reason,
	})

	o.clearConference()
	if sigErr != nil {
		return fmt.Errorf("end conference: %w", sigErr)
	}
	return nil
}

// Rejoin drops all session state and joins the last conference again.
// Used after a resume probe failed or the event channel came back.
func (o *Orchestrator) Rejoin(ctx context.Context) (*domain.ConferenceSnapshot, error) {
	o.mu.Lock()
	id := o.lastJoined
	// One rejoin per disruption; a successful join records it again.
	o.lastJoined = ""
	o.mu.Unlock()
	if id == "" {
		return nil, domain.ErrNotInConference
	}

	o.clearConference()

	snap, err := o.Join(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.cb.OnRejoined != nil {
		o.cb.OnRejoined(snap)
	}
	return snap, nil
}

// shutdownStreams unpublishes local streams and stops remote views,
// best effort, then drops every media session.
func (o *Orchestrator) shutdownStreams(ctx context.Context, sess domain.AuthSession, conferenceID string) {
	for _, e := range o.reg.Local() {
		o.notifyStream(e.SessionID, domain.StreamStateLocalDisconnecting)
		if err := o.signaler.UnpublishStream(ctx, domain.UnpublishStreamRequest{
			ConferenceID:   conferenceID,
			UserID:         sess.UserID,
			UserEndpointID: sess.EndpointID,
			StreamID:       e.SessionID,
			StreamType:     e.Kind,
		}); err != nil {
			o.log.Warn().Err(err).Str("stream", e.SessionID).Msg("unpublish on shutdown failed")
		}
		o.notifyStream(e.SessionID, domain.StreamStateLocalDisconnected)
	}
	for _, e := range o.reg.Remote() {
		o.stopViewSignaling(ctx, sess, conferenceID, e)
	}
	o.reg.RemoveAll()
}

func (o *Orchestrator) clearConference() {
	o.reg.RemoveAll()
	o.seq.Reset()
	o.mu.Lock()
	o.current = nil
	o.viewers = make(map[string]string)
	o.trickle = make(map[string]bool)
	o.mu.Unlock()
}

// PublishLocalStream captures local media of the given kind, negotiates
// it with the server and returns the new stream id.
func (o *Orchestrator) PublishLocalStream(ctx context.Context, kind domain.StreamKind) (string, error) {
	sess, err := o.session()
	if err != nil {
		return "", err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return "", err
	}

	streamID := uuid.NewString()
	media, err := o.media.NewSession(kind, domain.RoleLocal)
	if err != nil {
		return "", &domain.PublishStreamError{Stage: domain.StageCapture, Err: err}
	}
	entry := &registry.Entry{
		SessionID: streamID,
		Role:      domain.RoleLocal,
		Kind:      kind,
		Media:     media,
	}
	if err := o.reg.Create(entry); err != nil {
		media.Close()
		return "", &domain.PublishStreamError{Stage: domain.StageCapture, Err: err}
	}
	o.hookPublishCandidates(streamID, media)
	media.OnConnected(func() { o.notifyStream(streamID, domain.StreamStateLocalConnected) })
	o.notifyStream(streamID, domain.StreamStateLocalCaptureStarted)

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		o.reg.Remove(streamID)
		return "", &domain.PublishStreamError{Stage: domain.StageMakeOffer, Err: err}
	}
	if err := media.SetLocalDescription(ctx, offer); err != nil {
		o.reg.Remove(streamID)
		return "", &domain.PublishStreamError{Stage: domain.StageLocalDescription, Err: err}
	}
	o.notifyStream(streamID, domain.StreamStateLocalConnecting)

	resp, err := o.signaler.PublishStream(ctx, domain.PublishStreamRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		StreamID:       streamID,
		StreamType:     kind,
		SDPOffer:       offer.SDP,
	})
	if err != nil {
		// The entry stays registered so the caller can inspect and
		// clean it up; it must not be silently orphaned.
		return streamID, &domain.PublishStreamError{Stage: domain.StageSignaling, Err: err}
	}

	// The flow may have been torn down while the request was in flight.
	if _, ok := o.reg.Find(streamID); !ok {
		return "", &domain.PublishStreamError{Stage: domain.StageSignaling, Detail: "session removed during negotiation"}
	}

	if err := media.SetRemoteDescription(ctx, domain.SessionDescription{Type: "answer", SDP: resp.SDPAnswer}); err != nil {
		return streamID, &domain.PublishStreamError{Stage: domain.StageRemoteDescription, Err: err}
	}

	o.mu.Lock()
	o.trickle[streamID] = true
	o.mu.Unlock()
	o.flushPublishCandidates(ctx, sess, conferenceID, streamID)

	o.log.Info().Str("stream", streamID).Str("kind", string(kind)).Msg("local stream published")
	return streamID, nil
}

// UnpublishLocalStream withdraws one published stream.
func (o *Orchestrator) UnpublishLocalStream(ctx context.Context, streamID string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return err
	}
	entry, ok := o.reg.Find(streamID)
	if !ok {
		return &domain.MissingPeerConnectionError{SessionID: streamID}
	}

	// Local teardown comes first so media never dangles when the
	// signaling call fails.
	o.notifyStream(streamID, domain.StreamStateLocalDisconnecting)
	o.reg.Remove(streamID)
	sigErr := o.signaler.UnpublishStream(ctx, domain.UnpublishStreamRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		StreamID:       streamID,
		StreamType:     entry.Kind,
	})
	o.notifyStream(streamID, domain.StreamStateLocalDisconnected)

	if sigErr != nil {
		return &domain.PublishStreamError{Stage: domain.StageSignaling, Err: sigErr}
	}
	return nil
}

// UnpublishAllLocalStreams withdraws every published stream. With no
// local streams it performs no signaling at all.
func (o *Orchestrator) UnpublishAllLocalStreams(ctx context.Context) error {
	var firstErr error
	for _, e := range o.reg.Local() {
		if err := o.UnpublishLocalStream(ctx, e.SessionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ViewRemoteStream starts receiving a remote participant's stream.
func (o *Orchestrator) ViewRemoteStream(ctx context.Context, streamID, remoteUserID, remoteEndpointID string, kind domain.StreamKind) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return err
	}

	viewerID := uuid.NewString()
	media, err := o.media.NewSession(kind, domain.RoleRemote)
	if err != nil {
		return &domain.RemoteStreamError{Stage: domain.StageCapture, Err: err}
	}
	entry := &registry.Entry{
		SessionID:        streamID,
		Role:             domain.RoleRemote,
		Kind:             kind,
		RemoteUserID:     remoteUserID,
		RemoteEndpointID: remoteEndpointID,
		Media:            media,
	}
	if err := o.reg.Create(entry); err != nil {
		media.Close()
		return &domain.RemoteStreamError{Stage: domain.StageCapture, Err: err}
	}
	o.hookViewCandidates(streamID, viewerID, media)
	media.OnConnected(func() { o.notifyStream(streamID, domain.StreamStateRemoteConnected) })
	o.notifyStream(streamID, domain.StreamStateRemoteConnecting)

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		o.reg.Remove(streamID)
		return &domain.RemoteStreamError{Stage: domain.StageMakeOffer, Err: err}
	}
	if err := media.SetLocalDescription(ctx, offer); err != nil {
		o.reg.Remove(streamID)
		return &domain.RemoteStreamError{Stage: domain.StageLocalDescription, Err: err}
	}

	resp, err := o.signaler.ViewStream(ctx, domain.ViewStreamRequest{
		ConferenceID:     conferenceID,
		UserID:           sess.UserID,
		UserEndpointID:   sess.EndpointID,
		StreamID:         streamID,
		StreamType:       kind,
		TargetUserID:     remoteUserID,
		TargetEndpointID: remoteEndpointID,
		ViewerID:         viewerID,
		SDPOffer:         offer.SDP,
	})
	if err != nil {
		o.reg.Remove(streamID)
		return &domain.RemoteStreamError{Stage: domain.StageSignaling, Err: err}
	}

	if _, ok := o.reg.Find(streamID); !ok {
		return &domain.RemoteStreamError{Stage: domain.StageSignaling, Detail: "session removed during negotiation"}
	}

	o.mu.Lock()
	o.viewers[streamID] = resp.ViewerID
	o.trickle[streamID] = true
	o.mu.Unlock()

	if err := media.SetRemoteDescription(ctx, domain.SessionDescription{Type: "answer", SDP: resp.SDPAnswer}); err != nil {
		return &domain.RemoteStreamError{Stage: domain.StageRemoteDescription, Err: err}
	}
	o.flushViewCandidates(ctx, sess, conferenceID, streamID, resp.ViewerID)

	o.log.Info().Str("stream", streamID).Str("viewer", resp.ViewerID).Msg("viewing remote stream")
	return nil
}

// StopRemoteStream stops viewing a remote stream. A 404 means the
// server already forgot the view, which counts as success.
func (o *Orchestrator) StopRemoteStream(ctx context.Context, streamID string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return err
	}
	entry, ok := o.reg.Find(streamID)
	if !ok {
		return &domain.MissingPeerConnectionError{SessionID: streamID}
	}

	o.notifyStream(streamID, domain.StreamStateRemoteDisconnecting)
	sigErr := o.stopViewSignaling(ctx, sess, conferenceID, entry)
	o.removeView(streamID)
	o.notifyStream(streamID, domain.StreamStateRemoteDisconnected)

	if sigErr != nil {
		return &domain.RemoteStreamError{Stage: domain.StageSignaling, Err: sigErr}
	}
	return nil
}

// StopAllRemoteStreams stops every active view.
func (o *Orchestrator) StopAllRemoteStreams(ctx context.Context) error {
	var firstErr error
	for _, e := range o.reg.Remote() {
		if err := o.StopRemoteStream(ctx, e.SessionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// stopViewSignaling issues the stop request, treating 404 as done.
func (o *Orchestrator) stopViewSignaling(ctx context.Context, sess domain.AuthSession, conferenceID string, entry *registry.Entry) error {
	o.mu.Lock()
	viewerID := o.viewers[entry.SessionID]
	o.mu.Unlock()

	err := o.signaler.StopViewStream(ctx, domain.StopViewStreamRequest{
		ConferenceID:     conferenceID,
		UserID:           sess.UserID,
		UserEndpointID:   sess.EndpointID,
		StreamID:         entry.SessionID,
		StreamType:       entry.Kind,
		TargetUserID:     entry.RemoteUserID,
		TargetEndpointID: entry.RemoteEndpointID,
		ViewerID:         viewerID,
	})
	if err != nil {
		var httpErr *domain.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusNotFound {
			// Idempotent teardown: the view is gone either way.
			return nil
		}
		return err
	}
	return nil
}

func (o *Orchestrator) removeView(streamID string) {
	o.reg.Remove(streamID)
	o.mu.Lock()
	delete(o.viewers, streamID)
	delete(o.trickle, streamID)
	o.mu.Unlock()
}

// ToggleLocalStream mutes or unmutes one track of a published stream.
// The track is masked optimistically, but it is only really removed
// once the server acknowledged the metadata update. On a signaling
// failure the mask is rolled back and the error surfaces.
func (o *Orchestrator) ToggleLocalStream(ctx context.Context, streamID string, kind domain.TrackKind, op domain.MetadataOperation) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return err
	}
	entry, ok := o.reg.Find(streamID)
	if !ok {
		return &domain.MissingPeerConnectionError{SessionID: streamID}
	}

	mute := op == domain.MetadataSet
	if mute {
		if err := entry.Media.SetTrackEnabled(kind, false); err != nil {
			return fmt.Errorf("mask %s track: %w", kind, err)
		}
	}

	req := domain.UpdateMetadataRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Key:            domain.TrackMutedKey(kind, streamID),
		Operation:      op,
	}
	if mute {
		req.Value = "true"
	}
	if err := o.signaler.UpdateConferenceMetadata(ctx, req); err != nil {
		if mute {
			if rerr := entry.Media.SetTrackEnabled(kind, true); rerr != nil {
				o.log.Warn().Err(rerr).Str("stream", streamID).Msg("mute rollback failed")
			}
		}
		return fmt.Errorf("update mute metadata: %w", err)
	}

	if mute {
		if err := entry.Media.RemoveTrack(kind); err != nil {
			o.log.Warn().Err(err).Str("stream", streamID).Msg("track removal failed")
		}
	} else {
		if err := entry.Media.AddTrack(kind); err != nil {
			o.log.Warn().Err(err).Str("stream", streamID).Msg("track restore failed")
		}
		if err := entry.Media.SetTrackEnabled(kind, true); err != nil {
			o.log.Warn().Err(err).Str("stream", streamID).Msg("track unmask failed")
		}
	}

	o.mu.Lock()
	if o.current != nil {
		set := o.current.MutedAudioStreams
		if kind == domain.TrackKindVideo {
			set = o.current.MutedVideoStreams
		}
		if mute {
			set[streamID] = true
		} else {
			delete(set, streamID)
		}
	}
	o.mu.Unlock()
	return nil
}

// SetHold flags or clears the conference hold state for this user.
func (o *Orchestrator) SetHold(ctx context.Context, onHold bool) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	conferenceID, err := o.conferenceID()
	if err != nil {
		return err
	}

	op := domain.MetadataRemove
	value := ""
	if onHold {
		op = domain.MetadataSet
		value = "true"
	}
	if err := o.signaler.UpdateConferenceMetadata(ctx, domain.UpdateMetadataRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Key:            domain.MetadataKeyOnHold + "/" + sess.UserID,
		Operation:      op,
		Value:          value,
	}); err != nil {
		return fmt.Errorf("update hold metadata: %w", err)
	}

	o.mu.Lock()
	if o.current != nil {
		o.current.OnHold = onHold
	}
	o.mu.Unlock()
	return nil
}

// Candidate plumbing for publish and view sessions. Candidates buffer
// until the SDP answer is applied, then trickle directly.

func (o *Orchestrator) hookPublishCandidates(streamID string, media domain.MediaSession) {
	media.OnICECandidate(func(c domain.ICECandidate) {
		// Candidates keep arriving long after the originating request
		// returned, so trickling runs on the session's own lifetime.
		ctx := context.Background()
		if o.bufferOrPass(streamID, c) {
			return
		}
		sess, err := o.session()
		if err != nil {
			return
		}
		conferenceID, err := o.conferenceID()
		if err != nil {
			return
		}
		if err := o.signaler.AddPublishStreamICECandidates(ctx, domain.PublishStreamICECandidatesRequest{
			ConferenceID:   conferenceID,
			UserID:         sess.UserID,
			UserEndpointID: sess.EndpointID,
			StreamID:       streamID,
			Candidates:     []domain.ICECandidate{c},
		}); err != nil {
			o.log.Warn().Err(err).Str("stream", streamID).Msg("trickle candidate failed")
		}
	})
}

func (o *Orchestrator) hookViewCandidates(streamID, viewerID string, media domain.MediaSession) {
	media.OnICECandidate(func(c domain.ICECandidate) {
		ctx := context.Background()
		if o.bufferOrPass(streamID, c) {
			return
		}
		sess, err := o.session()
		if err != nil {
			return
		}
		conferenceID, err := o.conferenceID()
		if err != nil {
			return
		}
		if err := o.signaler.AddViewStreamICECandidates(ctx, domain.ViewStreamICECandidatesRequest{
			ConferenceID:   conferenceID,
			UserID:         sess.UserID,
			UserEndpointID: sess.EndpointID,
			StreamID:       streamID,
			ViewerID:       viewerID,
			Candidates:     []domain.ICECandidate{c},
		}); err != nil {
			o.log.Warn().Err(err).Str("stream", streamID).Msg("trickle candidate failed")
		}
	})
}

// bufferOrPass buffers the candidate while the session is still
// negotiating and reports whether it was buffered.
func (o *Orchestrator) bufferOrPass(streamID string, c domain.ICECandidate) bool {
	o.mu.Lock()
	ready := o.trickle[streamID]
	o.mu.Unlock()
	if !ready {
		o.reg.AppendCandidate(streamID, c)
		return true
	}
	return false
}

func (o *Orchestrator) flushPublishCandidates(ctx context.Context, sess domain.AuthSession, conferenceID, streamID string) {
	buffered := o.reg.DrainCandidates(streamID)
	if len(buffered) == 0 {
		return
	}
	if err := o.signaler.AddPublishStreamICECandidates(ctx, domain.PublishStreamICECandidatesRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		StreamID:       streamID,
		Candidates:     buffered,
	}); err != nil {
		o.log.Warn().Err(err).Str("stream", streamID).Msg("candidate flush failed")
	}
}

func (o *Orchestrator) flushViewCandidates(ctx context.Context, sess domain.AuthSession, conferenceID, streamID, viewerID string) {
	buffered := o.reg.DrainCandidates(streamID)
	if len(buffered) == 0 {
		return
	}
	if err := o.signaler.AddViewStreamICECandidates(ctx, domain.ViewStreamICECandidatesRequest{
		ConferenceID:   conferenceID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		StreamID:       streamID,
		ViewerID:       viewerID,
		Candidates:     buffered,
	}); err != nil {
		o.log.Warn().Err(err).Str("stream", streamID).Msg("candidate flush failed")
	}
}

func (o *Orchestrator) notifyStream(streamID string, s domain.StreamState) {
	if o.cb.OnStreamState != nil {
		o.cb.OnStreamState(streamID, s)
	}
}

func (o *Orchestrator) notifyError(err error) {
	o.log.Warn().Err(err).Msg("conference event error")
	if o.cb.OnError != nil {
		o.cb.OnError(err)
	}
}
