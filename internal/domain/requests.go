package domain

// Request and response payloads for the signaling REST surface. Field
// names follow the wire format of the rtc-api service.

type LoginRequest struct {
	Username string            `json:"username"`
	Password string            `json:"password"`
	ClientID string            `json:"clientId"`
	Params   map[string]string `json:"params,omitempty"`
}

type LoginResponse struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type CallRequest struct {
	CallID         string            `json:"callId"`
	UserID         string            `json:"userId"`
	UserEndpointID string            `json:"userEndpointId"`
	Target         string            `json:"target"`
	SDPOffer       string            `json:"sdpOffer"`
	SIPHeaders     map[string]string `json:"sipHeaders,omitempty"`
}

type CallAnswerRequest struct {
	CallID         string `json:"callId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	SDPAnswer      string `json:"sdpAnswer"`
}

type CallRejectRequest struct {
	CallID         string `json:"callId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Reason         string `json:"reason"`
}

type CallRingingRequest struct {
	CallID         string `json:"callId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
}

type CallHangupRequest struct {
	CallID         string `json:"callId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Reason         string `json:"reason"`
}

type CallCancelRequest struct {
	CallID         string `json:"callId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
}

type CallICECandidatesRequest struct {
	CallID         string         `json:"callId"`
	UserID         string         `json:"userId"`
	UserEndpointID string         `json:"userEndpointId"`
	Candidates     []ICECandidate `json:"iceCandidates"`
}

type CreateConferenceRequest struct {
	ConferenceID string         `json:"conferenceId"`
	CreatorID    string         `json:"creatorId"`
	Mode         ConferenceMode `json:"mode"`
}

type EndConferenceRequest struct {
	ConferenceID   string `json:"conferenceId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Reason         string `json:"reason"`
}

type JoinConferenceRequest struct {
	ConferenceID   string `json:"conferenceId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
}

type LeaveConferenceRequest struct {
	ConferenceID   string `json:"conferenceId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Reason         string `json:"reason"`
}

type PublishStreamRequest struct {
	ConferenceID   string     `json:"conferenceId"`
	UserID         string     `json:"userId"`
	UserEndpointID string     `json:"userEndpointId"`
	StreamID       string     `json:"streamId"`
	StreamType     StreamKind `json:"streamType"`
	SDPOffer       string     `json:"sdpOffer"`
}

type PublishStreamResponse struct {
	SDPAnswer string `json:"sdpAnswer"`
}

type UnpublishStreamRequest struct {
	ConferenceID   string     `json:"conferenceId"`
	UserID         string     `json:"userId"`
	UserEndpointID string     `json:"userEndpointId"`
	StreamID       string     `json:"streamId"`
	StreamType     StreamKind `json:"streamType"`
}

type ViewStreamRequest struct {
	ConferenceID     string     `json:"conferenceId"`
	UserID           string     `json:"userId"`
	UserEndpointID   string     `json:"userEndpointId"`
	StreamID         string     `json:"streamId"`
	StreamType       StreamKind `json:"streamType"`
	TargetUserID     string     `json:"targetUserId"`
	TargetEndpointID string     `json:"targetUserEndpointId"`
	ViewerID         string     `json:"viewerId"`
	SDPOffer         string     `json:"sdpOffer"`
}

type ViewStreamResponse struct {
	SDPAnswer string `json:"sdpAnswer"`
	ViewerID  string `json:"viewerId"`
}

type StopViewStreamRequest struct {
	ConferenceID     string     `json:"conferenceId"`
	UserID           string     `json:"userId"`
	UserEndpointID   string     `json:"userEndpointId"`
	StreamID         string     `json:"streamId"`
	StreamType       StreamKind `json:"streamType"`
	TargetUserID     string     `json:"targetUserId"`
	TargetEndpointID string     `json:"targetUserEndpointId"`
	ViewerID         string     `json:"viewerId"`
}

type UpdateMetadataRequest struct {
	ConferenceID   string            `json:"conferenceId"`
	UserID         string            `json:"userId"`
	UserEndpointID string            `json:"userEndpointId"`
	Key            string            `json:"key"`
	Operation      MetadataOperation `json:"operation"`
	Value          string            `json:"value,omitempty"`
}

type PublishStreamICECandidatesRequest struct {
	ConferenceID   string         `json:"conferenceId"`
	UserID         string         `json:"userId"`
	UserEndpointID string         `json:"userEndpointId"`
	StreamID       string         `json:"streamId"`
	Candidates     []ICECandidate `json:"iceCandidates"`
}

type ViewStreamICECandidatesRequest struct {
	ConferenceID   string         `json:"conferenceId"`
	UserID         string         `json:"userId"`
	UserEndpointID string         `json:"userEndpointId"`
	StreamID       string         `json:"streamId"`
	ViewerID       string         `json:"viewerId"`
	Candidates     []ICECandidate `json:"iceCandidates"`
}

type CreateEndpointRequest struct {
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	KeepAliveSec   int    `json:"keepAliveSeconds"`
}

type CreateEndpointResponse struct {
	UserEndpointID string `json:"userEndpointId"`
	KeepAliveSec   int    `json:"keepAliveSeconds"`
}

type EndpointInfo struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

type KeepAliveRequest struct {
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
}

type UnregisterEndpointRequest struct {
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Reason         string `json:"reason"`
}

type CameraRespondRequest struct {
	SnapshotID     string `json:"snapshotId"`
	UserID         string `json:"userId"`
	UserEndpointID string `json:"userEndpointId"`
	Accepted       bool   `json:"accepted"`
}

// SnapshotUpload is the multipart payload of an acquired camera snapshot.
type SnapshotUpload struct {
	SnapshotID     string
	SnapshotSuffix string
	SnapshotType   string
	UserID         string
	UserEndpointID string
	Data           []byte
}
