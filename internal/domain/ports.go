package domain

import "context"

// AuthSignaler covers authentication and ICE configuration.
type AuthSignaler interface {
	Login(ctx context.Context, req LoginRequest) (*AuthSession, error)
	GetICEServers(ctx context.Context) ([]ICEServer, error)
}

// CallSignaler covers the direct-call REST surface.
type CallSignaler interface {
	Call(ctx context.Context, req CallRequest) error
	AnswerCall(ctx context.Context, req CallAnswerRequest) error
	RejectCall(ctx context.Context, req CallRejectRequest) error
	CallRinging(ctx context.Context, req CallRingingRequest) error
	HangupCall(ctx context.Context, req CallHangupRequest) error
	CancelCall(ctx context.Context, req CallCancelRequest) error
	AddCallICECandidates(ctx context.Context, req CallICECandidatesRequest) error
}

// ConferenceSignaler covers the conference REST surface.
type ConferenceSignaler interface {
	CreateConference(ctx context.Context, req CreateConferenceRequest) (ConferenceSummary, error)
	EndConference(ctx context.Context, req EndConferenceRequest) error
	JoinConference(ctx context.Context, req JoinConferenceRequest) error
	LeaveConference(ctx context.Context, req LeaveConferenceRequest) error
	GetConferences(ctx context.Context) ([]ConferenceSummary, error)
	GetConferenceSummary(ctx context.Context, id string) (ConferenceSummary, error)
	GetConferenceDetails(ctx context.Context, id string) (*ConferenceDetails, error)
	GetConferenceSimpleView(ctx context.Context, id string) (*ConferenceSnapshot, error)
	PublishStream(ctx context.Context, req PublishStreamRequest) (PublishStreamResponse, error)
	UnpublishStream(ctx context.Context, req UnpublishStreamRequest) error
	ViewStream(ctx context.Context, req ViewStreamRequest) (ViewStreamResponse, error)
	StopViewStream(ctx context.Context, req StopViewStreamRequest) error
	UpdateConferenceMetadata(ctx context.Context, req UpdateMetadataRequest) error
	AddPublishStreamICECandidates(ctx context.Context, req PublishStreamICECandidatesRequest) error
	AddViewStreamICECandidates(ctx context.Context, req ViewStreamICECandidatesRequest) error
}

// EndpointSignaler covers endpoint registration and keepalive.
type EndpointSignaler interface {
	CreateEndpoint(ctx context.Context, req CreateEndpointRequest) (CreateEndpointResponse, error)
	GetEndpoints(ctx context.Context) ([]EndpointInfo, error)
	GetEndpointDetails(ctx context.Context, id string) (EndpointInfo, error)
	KeepAlive(ctx context.Context, req KeepAliveRequest) error
	UnregisterEndpoint(ctx context.Context, req UnregisterEndpointRequest) error
}

// SnapshotSignaler covers the camera snapshot workflow.
type SnapshotSignaler interface {
	CameraRequestRespond(ctx context.Context, req CameraRespondRequest) error
	UploadSnapshot(ctx context.Context, up SnapshotUpload) error
}

// Signaler is the full signaling transport consumed by the SDK.
type Signaler interface {
	AuthSignaler
	CallSignaler
	ConferenceSignaler
	EndpointSignaler
	SnapshotSignaler
}

// EventChannel is the server-push connection carrying call, conference
// and snapshot events for an endpoint.
type EventChannel interface {
	Connect(ctx context.Context) error
	Subscribe(topic string) error
	Reconnect(ctx context.Context) error
	Close() error
}

// EventHandlers receives decoded events from an EventChannel. Nil
// handlers are skipped.
type EventHandlers struct {
	OnConferenceEvent func(ConferenceEvent)
	OnCallEvent       func(CallEvent)
	OnSnapshotEvent   func(SnapshotEvent)
	OnDisconnect      func(error)
}

// MediaSession is one negotiated peer connection with its tracks.
type MediaSession interface {
	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc SessionDescription) error
	AddICECandidate(c ICECandidate) error
	OnICECandidate(fn func(ICECandidate))
	OnConnected(fn func())

	// Track control for mute/unmute. SetTrackEnabled masks the track
	// locally; RemoveTrack and AddTrack renegotiate its presence.
	SetTrackEnabled(kind TrackKind, enabled bool) error
	RemoveTrack(kind TrackKind) error
	AddTrack(kind TrackKind) error

	Close() error
}

// MediaFactory builds media sessions for a stream kind and role.
type MediaFactory interface {
	NewSession(kind StreamKind, role Role) (MediaSession, error)
}
