// Package call drives the direct-call signaling flows: placing,
// receiving, answering and tearing down one-to-one calls.
package call

import (
	"context"
	"fmt"
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

// Callbacks notify the embedding application of call progress. Nil
// callbacks are skipped.
type Callbacks struct {
	OnIncomingCall func(ev *domain.CallCreated)
	OnRinging      func(callID string)
	OnConnected    func(callID string)
	OnRejected     func(callID, reason string)
	OnCancelled    func(callID string)
	OnEnded        func(callID, reason string)
	OnStreamState  func(callID string, state domain.StreamState)
	OnError        func(err error)
}

// Call is the orchestrator's view of the single active call.
type Call struct {
	ID        string
	Direction Direction
	State     State
	Kind      domain.StreamKind
	Target    string
}

// Orchestrator owns the active call and its media session. Incoming
// events are applied serially by the event channel's dispatch loop.
type Orchestrator struct {
	signaler domain.CallSignaler
	media    domain.MediaFactory
	reg      *registry.Registry
	auth     AuthProvider
	log      zerolog.Logger
	cb       Callbacks

	mu      sync.Mutex
	active  *Call
	trickle map[string]bool
}

// New builds a call orchestrator.
func New(signaler domain.CallSignaler, media domain.MediaFactory, reg *registry.Registry, auth AuthProvider, cb Callbacks, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		signaler: signaler,
		media:    media,
		reg:      reg,
		auth:     auth,
		cb:       cb,
		log:      log.With().Str("module", "call").Logger(),
		trickle:  make(map[string]bool),
	}
}

// Active returns a copy of the current call, if any.
func (o *Orchestrator) Active() (Call, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Call{}, false
	}
	return *o.active, true
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

// Start places an outgoing call and returns its id. The SDP offer is
// negotiated before the signaling request goes out.
func (o *Orchestrator) Start(ctx context.Context, target string, kind domain.StreamKind, sipHeaders map[string]string) (string, error) {
	sess, err := o.session()
	if err != nil {
		return "", err
	}

	callID := uuid.NewString()
	media, err := o.media.NewSession(kind, domain.RoleLocal)
	if err != nil {
		return "", &domain.CallError{Op: "start", Err: fmt.Errorf("%w: %v", domain.ErrCaptureFailure, err)}
	}
	entry := &registry.Entry{
		SessionID: callID,
		CallID:    callID,
		Role:      domain.RoleLocal,
		Kind:      kind,
		Media:     media,
	}
	if err := o.reg.Create(entry); err != nil {
		media.Close()
		return "", &domain.CallError{Op: "start", Err: err}
	}
	o.mu.Lock()
	o.active = &Call{ID: callID, Direction: Outgoing, State: StateOfferingLocal, Kind: kind, Target: target}
	o.mu.Unlock()
	o.hookCandidates(callID, media)
	o.notifyStream(callID, domain.StreamStateLocalCaptureStarted)

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		o.abort(callID)
		return "", &domain.CallError{Op: "start", Err: err}
	}
	if err := media.SetLocalDescription(ctx, offer); err != nil {
		o.abort(callID)
		return "", &domain.CallError{Op: "start", Err: err}
	}
	o.notifyStream(callID, domain.StreamStateLocalConnecting)

	if err := o.signaler.Call(ctx, domain.CallRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Target:         target,
		SDPOffer:       offer.SDP,
		SIPHeaders:     sipHeaders,
	}); err != nil {
		o.abort(callID)
		return "", &domain.CallError{Op: "start", Err: err}
	}
	o.setState(callID, StateAwaitingAnswer)

	o.log.Info().Str("call", callID).Str("target", target).Msg("call placed")
	return callID, nil
}

// abort clears a call that failed before it was fully placed.
func (o *Orchestrator) abort(callID string) {
	o.reg.Remove(callID)
	o.mu.Lock()
	if o.active != nil && o.active.ID == callID {
		o.active = nil
	}
	o.mu.Unlock()
}

// Accept answers an incoming call. The caller's offer must come from
// the CallCreated event that announced the call.
func (o *Orchestrator) Accept(ctx context.Context, ev *domain.CallCreated, kind domain.StreamKind) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	callID := ev.CallID

	media, err := o.media.NewSession(kind, domain.RoleLocal)
	if err != nil {
		return &domain.CallError{Op: "accept", Err: fmt.Errorf("%w: %v", domain.ErrCaptureFailure, err)}
	}
	entry := &registry.Entry{
		SessionID:        callID,
		CallID:           callID,
		Role:             domain.RoleLocal,
		Kind:             kind,
		RemoteUserID:     ev.UserID,
		RemoteEndpointID: ev.UserEndpointID,
		Media:            media,
	}
	if err := o.reg.Create(entry); err != nil {
		media.Close()
		return &domain.CallError{Op: "accept", Err: err}
	}
	o.hookCandidates(callID, media)
	o.notifyStream(callID, domain.StreamStateLocalCaptureStarted)

	if err := media.SetRemoteDescription(ctx, domain.SessionDescription{Type: "offer", SDP: ev.SDPOffer}); err != nil {
		o.reg.Remove(callID)
		return &domain.CallError{Op: "accept", Err: err}
	}
	answer, err := media.CreateAnswer(ctx)
	if err != nil {
		o.reg.Remove(callID)
		return &domain.CallError{Op: "accept", Err: err}
	}
	if err := media.SetLocalDescription(ctx, answer); err != nil {
		o.reg.Remove(callID)
		return &domain.CallError{Op: "accept", Err: err}
	}
	o.notifyStream(callID, domain.StreamStateLocalConnecting)

	if err := o.signaler.AnswerCall(ctx, domain.CallAnswerRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		SDPAnswer:      answer.SDP,
	}); err != nil {
		o.reg.Remove(callID)
		return &domain.CallError{Op: "accept", Err: err}
	}

	o.mu.Lock()
	o.active = &Call{ID: callID, Direction: Incoming, State: StateConnecting, Kind: kind}
	o.trickle[callID] = true
	o.mu.Unlock()

	o.flushCandidates(ctx, sess, callID)
	o.log.Info().Str("call", callID).Msg("call accepted")
	return nil
}

// Reject declines an incoming call.
func (o *Orchestrator) Reject(ctx context.Context, callID, reason string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	if err := o.signaler.RejectCall(ctx, domain.CallRejectRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Reason:         reason,
	}); err != nil {
		return &domain.CallError{Op: "reject", Err: err}
	}
	o.teardown(callID, StateRejected)
	return nil
}

// Cancel abandons an outgoing call before answer. Local cleanup runs
// before the signaling error, if any, is reported.
func (o *Orchestrator) Cancel(ctx context.Context, callID string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}
	sigErr := o.signaler.CancelCall(ctx, domain.CallCancelRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
	})
	o.teardown(callID, StateCancelled)
	if sigErr != nil {
		return &domain.CallError{Op: "cancel", Err: sigErr}
	}
	return nil
}

// Hangup ends an established call. Local cleanup always happens; a
// signaling failure is reported afterwards.
func (o *Orchestrator) Hangup(ctx context.Context, callID, reason string) error {
	sess, err := o.session()
	if err != nil {
		return err
	}

	o.notifyStream(callID, domain.StreamStateLocalDisconnecting)
	o.setState(callID, StateDisconnecting)
	o.teardown(callID, StateEnded)
	o.notifyStream(callID, domain.StreamStateLocalDisconnected)

	if err := o.signaler.HangupCall(ctx, domain.CallHangupRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Reason:         reason,
	}); err != nil {
		return &domain.CallError{Op: "hangup", Err: err}
	}
	return nil
}

// HandleEvent applies one decoded call event.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev domain.CallEvent) {
	switch e := ev.(type) {
	case *domain.CallCreated:
		o.handleCreated(ctx, e)
	case *domain.CallRinging:
		o.setState(e.CallID, StateRinging)
		if o.cb.OnRinging != nil {
			o.cb.OnRinging(e.CallID)
		}
	case *domain.CallAnswered:
		o.handleAnswered(ctx, e)
	case *domain.CallRejected:
		o.teardown(e.CallID, StateRejected)
		if o.cb.OnRejected != nil {
			o.cb.OnRejected(e.CallID, e.Reason)
		}
	case *domain.CallCancelled:
		o.teardown(e.CallID, StateCancelled)
		if o.cb.OnCancelled != nil {
			o.cb.OnCancelled(e.CallID)
		}
	case *domain.CallEnded:
		o.notifyStream(e.CallID, domain.StreamStateRemoteDisconnected)
		o.teardown(e.CallID, StateEnded)
		if o.cb.OnEnded != nil {
			o.cb.OnEnded(e.CallID, e.Reason)
		}
	case *domain.CallICECandidatesFound:
		o.handleRemoteCandidates(e)
	default:
		o.log.Debug().Str("type", ev.CallBase().Type).Msg("unhandled call event")
	}
}

// handleCreated registers the incoming call and acknowledges it with a
// ringing signal before handing it to the application.
func (o *Orchestrator) handleCreated(ctx context.Context, ev *domain.CallCreated) {
	sess, err := o.session()
	if err != nil {
		o.notifyError(err)
		return
	}

	o.mu.Lock()
	o.active = &Call{ID: ev.CallID, Direction: Incoming, State: StateRinging}
	o.mu.Unlock()

	if err := o.signaler.CallRinging(ctx, domain.CallRingingRequest{
		CallID:         ev.CallID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
	}); err != nil {
		o.log.Warn().Err(err).Str("call", ev.CallID).Msg("ringing signal failed")
	}
	if o.cb.OnIncomingCall != nil {
		o.cb.OnIncomingCall(ev)
	}
}

// handleAnswered applies the callee's answer and flushes the local
// candidates gathered while waiting for it.
func (o *Orchestrator) handleAnswered(ctx context.Context, ev *domain.CallAnswered) {
	entry, ok := o.reg.FindByCallID(ev.CallID)
	if !ok {
		o.notifyError(&domain.MissingPeerConnectionError{SessionID: ev.CallID})
		return
	}

	answer := domain.SessionDescription{Type: "answer", SDP: normalizeCodecCase(ev.SDPAnswer)}
	if err := entry.Media.SetRemoteDescription(ctx, answer); err != nil {
		o.notifyError(&domain.CallError{Op: "answered", Err: err})
		return
	}

	sess, err := o.session()
	if err != nil {
		o.notifyError(err)
		return
	}

	o.mu.Lock()
	o.trickle[ev.CallID] = true
	o.mu.Unlock()
	o.flushCandidates(ctx, sess, ev.CallID)

	o.setState(ev.CallID, StateConnected)
	o.notifyStream(ev.CallID, domain.StreamStateLocalConnected)
	if o.cb.OnConnected != nil {
		o.cb.OnConnected(ev.CallID)
	}
}

func (o *Orchestrator) handleRemoteCandidates(ev *domain.CallICECandidatesFound) {
	entry, ok := o.reg.FindByCallID(ev.CallID)
	if !ok {
		o.notifyError(&domain.MissingPeerConnectionError{SessionID: ev.CallID})
		return
	}
	for _, c := range ev.Candidates {
		if err := entry.Media.AddICECandidate(c); err != nil {
			o.log.Warn().Err(err).Str("call", ev.CallID).Msg("remote candidate rejected")
		}
	}
}

// hookCandidates buffers gathered candidates until the answer arrives,
// then trickles them directly. Candidates keep arriving long after the
// originating request returned, so trickling runs on the session's own
// lifetime rather than the request context.
func (o *Orchestrator) hookCandidates(callID string, media domain.MediaSession) {
	media.OnICECandidate(func(c domain.ICECandidate) {
		o.mu.Lock()
		ready := o.trickle[callID]
		o.mu.Unlock()

		if !ready {
			o.reg.AppendCandidate(callID, c)
			return
		}
		sess, err := o.session()
		if err != nil {
			return
		}
		if err := o.signaler.AddCallICECandidates(context.Background(), domain.CallICECandidatesRequest{
			CallID:         callID,
			UserID:         sess.UserID,
			UserEndpointID: sess.EndpointID,
			Candidates:     []domain.ICECandidate{c},
		}); err != nil {
			o.log.Warn().Err(err).Str("call", callID).Msg("trickle candidate failed")
		}
	})
}

func (o *Orchestrator) flushCandidates(ctx context.Context, sess domain.AuthSession, callID string) {
	buffered := o.reg.DrainCandidates(callID)
	if len(buffered) == 0 {
		return
	}
	if err := o.signaler.AddCallICECandidates(ctx, domain.CallICECandidatesRequest{
		CallID:         callID,
		UserID:         sess.UserID,
		UserEndpointID: sess.EndpointID,
		Candidates:     buffered,
	}); err != nil {
		o.log.Warn().Err(err).Str("call", callID).Int("count", len(buffered)).Msg("candidate flush failed")
	}
}

// teardown removes the call's media session and clears the active call,
// recording the terminal state it reached.
func (o *Orchestrator) teardown(callID string, terminal State) {
	o.reg.Remove(callID)

	o.mu.Lock()
	delete(o.trickle, callID)
	if o.active != nil && o.active.ID == callID {
		o.active.State = terminal
		o.active = nil
	}
	o.mu.Unlock()

	o.log.Info().Str("call", callID).Str("state", terminal.String()).Msg("call torn down")
}

func (o *Orchestrator) setState(callID string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.ID == callID {
		o.active.State = s
	}
}

func (o *Orchestrator) notifyStream(callID string, s domain.StreamState) {
	if o.cb.OnStreamState != nil {
		o.cb.OnStreamState(callID, s)
	}
}

func (o *Orchestrator) notifyError(err error) {
	o.log.Warn().Err(err).Msg("call event error")
	if o.cb.OnError != nil {
		o.cb.OnError(err)
	}
}
