package domain

import (
	"encoding/json"
	"time"
)

// StreamKind describes which media tracks a stream carries.
type StreamKind string

const (
	StreamKindMic       StreamKind = "MIC"
	StreamKindCam       StreamKind = "CAM"
	StreamKindMicAndCam StreamKind = "MIC_AND_CAM"
	StreamKindScreen    StreamKind = "SCREEN"
	StreamKindUnknown   StreamKind = "UNKNOWN"
)

// HasAudio reports whether the kind carries an audio track.
func (k StreamKind) HasAudio() bool {
	return k == StreamKindMic || k == StreamKindMicAndCam
}

// HasVideo reports whether the kind carries a video track.
func (k StreamKind) HasVideo() bool {
	return k == StreamKindCam || k == StreamKindMicAndCam || k == StreamKindScreen
}

// ParseStreamKind maps a wire value to a StreamKind, falling back to UNKNOWN.
func ParseStreamKind(s string) StreamKind {
	switch StreamKind(s) {
	case StreamKindMic, StreamKindCam, StreamKindMicAndCam, StreamKindScreen:
		return StreamKind(s)
	default:
		return StreamKindUnknown
	}
}

// Role distinguishes sessions this endpoint publishes from sessions it views.
type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

func (r Role) String() string {
	if r == RoleLocal {
		return "local"
	}
	return "remote"
}

// ConferenceMode is the media topology of a conference.
type ConferenceMode string

const (
	ConferenceModeP2P     ConferenceMode = "P2P"
	ConferenceModeRouter  ConferenceMode = "ROUTER"
	ConferenceModeUnknown ConferenceMode = "UNKNOWN"
)

// ParseConferenceMode maps a wire value to a ConferenceMode, falling back to UNKNOWN.
func ParseConferenceMode(s string) ConferenceMode {
	switch ConferenceMode(s) {
	case ConferenceModeP2P, ConferenceModeRouter:
		return ConferenceMode(s)
	default:
		return ConferenceModeUnknown
	}
}

// TrackKind selects a single track within a stream.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MetadataOperation is a conference metadata mutation verb.
type MetadataOperation string

const (
	MetadataSet    MetadataOperation = "SET"
	MetadataRemove MetadataOperation = "REMOVE"
)

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a single ICE candidate in signaling form.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// ICEServer holds STUN/TURN server configuration returned by the API.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// ParticipantStream is one published stream of a remote participant.
type ParticipantStream struct {
	ID   string     `json:"id"`
	Kind StreamKind `json:"type"`
}

// ParticipantEndpoint is a remote endpoint and the streams it publishes.
type ParticipantEndpoint struct {
	ID      string              `json:"id"`
	UserID  string              `json:"userId"`
	Streams []ParticipantStream `json:"streams"`
}

// ConferenceSummary is the creation-time view of a conference.
type ConferenceSummary struct {
	ID        string         `json:"id"`
	Mode      ConferenceMode `json:"mode"`
	CreatorID string         `json:"creatorId"`
}

// ConferenceDetails is the full server-side conference document with
// the user/endpoint/stream nesting preserved.
type ConferenceDetails struct {
	ID           string                     `json:"id"`
	Mode         ConferenceMode             `json:"mode"`
	CreatorID    string                     `json:"creatorId"`
	Version      int                        `json:"version"`
	Participants []ConferenceUser           `json:"participants"`
	Metadata     map[string]json.RawMessage `json:"metadata"`
}

// ConferenceUser is one participant of the details document.
type ConferenceUser struct {
	ID        string               `json:"id"`
	Endpoints []ConferenceEndpoint `json:"endpoints"`
}

// ConferenceEndpoint is one endpoint of a details-document participant.
type ConferenceEndpoint struct {
	ID      string              `json:"id"`
	Streams []ParticipantStream `json:"streams"`
}

// ConferenceSnapshot is the authoritative server view of a conference,
// including the version the event sequencer gates on.
type ConferenceSnapshot struct {
	ID           string
	Mode         ConferenceMode
	Version      int
	Participants []ParticipantEndpoint

	// Metadata-derived state, maintained locally from MetadataUpdated events.
	MutedAudioStreams map[string]bool
	MutedVideoStreams map[string]bool
	OnHold            bool
}

// NewConferenceSnapshot returns a snapshot with the bookkeeping maps allocated.
func NewConferenceSnapshot(id string, mode ConferenceMode, version int) *ConferenceSnapshot {
	return &ConferenceSnapshot{
		ID:                id,
		Mode:              mode,
		Version:           version,
		MutedAudioStreams: make(map[string]bool),
		MutedVideoStreams: make(map[string]bool),
	}
}

// Participant returns the participant with the given endpoint id, if present.
func (s *ConferenceSnapshot) Participant(endpointID string) (ParticipantEndpoint, bool) {
	for _, p := range s.Participants {
		if p.ID == endpointID {
			return p, true
		}
	}
	return ParticipantEndpoint{}, false
}

// AuthSession holds the credentials of a logged-in user.
type AuthSession struct {
	UserID       string
	EndpointID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// StreamState is the lifecycle phase of a single media session.
type StreamState int

const (
	StreamStateIdle StreamState = iota
	StreamStateLocalCaptureStarted
	StreamStateLocalConnecting
	StreamStateLocalConnected
	StreamStateLocalDisconnecting
	StreamStateLocalDisconnected
	StreamStateLocalCaptureStopped
	StreamStateRemoteConnecting
	StreamStateRemoteConnected
	StreamStateRemoteDisconnecting
	StreamStateRemoteDisconnected
)

var streamStateNames = map[StreamState]string{
	StreamStateIdle:                "idle",
	StreamStateLocalCaptureStarted: "localCaptureStarted",
	StreamStateLocalConnecting:     "localStreamConnecting",
	StreamStateLocalConnected:      "localStreamConnected",
	StreamStateLocalDisconnecting:  "localStreamDisconnecting",
	StreamStateLocalDisconnected:   "localStreamDisconnected",
	StreamStateLocalCaptureStopped: "localCaptureStopped",
	StreamStateRemoteConnecting:    "remoteStreamConnecting",
	StreamStateRemoteConnected:     "remoteStreamConnected",
	StreamStateRemoteDisconnecting: "remoteStreamDisconnecting",
	StreamStateRemoteDisconnected:  "remoteStreamDisconnected",
}

func (s StreamState) String() string {
	if n, ok := streamStateNames[s]; ok {
		return n
	}
	return "unknown"
}

// NetworkGrade buckets measured connection quality.
type NetworkGrade string

const (
	NetworkGradeOptimal    NetworkGrade = "OPTIMAL"
	NetworkGradeSuboptimal NetworkGrade = "SUBOPTIMAL"
	NetworkGradeBad        NetworkGrade = "BAD"
)

// NetworkStats is the per-endpoint quality report of a network indicator event.
type NetworkStats struct {
	AvgJitter  float64      `json:"avgJitter"`
	AvgRTT     float64      `json:"avgRtt"`
	AvgQuality float64      `json:"avgQuality"`
	Grade      NetworkGrade `json:"grade"`
}

// MetadataKeyOnHold is the conference metadata key flagging a held conference.
const MetadataKeyOnHold = "ON_HOLD"

// TrackMutedKey builds the conference metadata key used to flag a muted track.
func TrackMutedKey(kind TrackKind, streamID string) string {
	return "TRACK_MUTED/" + string(kind) + "/" + streamID
}
