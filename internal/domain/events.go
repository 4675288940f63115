package domain

import (
	"encoding/json"
	"time"
)

// Wire values of the "type" discriminator on the event channel.
const (
	TypeConferenceJoined          = "ConferenceJoinedEvent"
	TypeConferenceLeft            = "ConferenceLeftEvent"
	TypeConferenceEnded           = "ConferenceEndedEvent"
	TypeConferenceStreamPublished = "ConferenceStreamPublishedEvent"
	TypeConferenceStreamUnpub     = "ConferenceStreamUnpublishedEvent"
	TypeConferenceMetadata        = "ConferenceMetadataUpdatedEvent"
	TypeConferenceStreamMetadata  = "ConferenceStreamMetadataUpdatedEvent"
	TypeConferenceNetworkUpdated  = "ConferenceNetworkIndicatorUpdatedEvent"

	TypeCallCreated   = "CallCreatedEvent"
	TypeCallRinging   = "CallRingingEvent"
	TypeCallAnswered  = "CallAnsweredEvent"
	TypeCallRejected  = "CallRejectedEvent"
	TypeCallCancelled = "CallCancelledEvent"
	TypeCallEnded     = "CallEndedEvent"
	TypeCallICEFound  = "IceCandidatesFoundEvent"

	TypeSnapshotCameraRequested = "SnapshotCameraRequestedEvent"
	TypeSnapshotRequested       = "SnapshotRequestedEvent"
	TypeSnapshotApproved        = "SnapshotApprovedEvent"
	TypeSnapshotAcquired        = "SnapshotAcquiredEvent"
)

// ConferenceEventBase carries the fields common to all conference events.
// Version is nil for events that bypass the sequencer's version gate.
type ConferenceEventBase struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ConferenceID   string    `json:"conferenceId"`
	Version        *int      `json:"conferenceVersion"`
	UserID         string    `json:"userId"`
	UserEndpointID string    `json:"userEndpointId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Base exposes the shared header of a conference event.
func (b *ConferenceEventBase) Base() *ConferenceEventBase { return b }

// ConferenceEvent is any event scoped to a conference.
type ConferenceEvent interface {
	Base() *ConferenceEventBase
}

// ConferenceJoined reports a participant joining.
type ConferenceJoined struct {
	ConferenceEventBase
}

// ConferenceLeft reports a participant leaving.
type ConferenceLeft struct {
	ConferenceEventBase
	Reason string `json:"reason"`
}

// ConferenceEnded reports the conference terminating for everyone.
type ConferenceEnded struct {
	ConferenceEventBase
	Reason string `json:"reason"`
}

// ConferenceStreamPublished reports a new remote stream becoming available.
type ConferenceStreamPublished struct {
	ConferenceEventBase
	StreamID   string     `json:"streamId"`
	StreamKind StreamKind `json:"streamType"`
}

// ConferenceStreamUnpublished reports a remote stream going away.
type ConferenceStreamUnpublished struct {
	ConferenceEventBase
	StreamID   string     `json:"streamId"`
	StreamKind StreamKind `json:"streamType"`
}

// ConferenceMetadataUpdated reports a SET or REMOVE on a conference metadata key.
type ConferenceMetadataUpdated struct {
	ConferenceEventBase
	Key       string            `json:"key"`
	Operation MetadataOperation `json:"operation"`
	Value     json.RawMessage   `json:"value"`
}

// MutedTrack parses a TRACK_MUTED metadata key into its track kind and stream id.
// The second return is false when the key is not a mute flag.
func (e *ConferenceMetadataUpdated) MutedTrack() (TrackKind, string, bool) {
	const prefix = "TRACK_MUTED/"
	if len(e.Key) <= len(prefix) || e.Key[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := e.Key[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			kind := TrackKind(rest[:i])
			if kind != TrackKindAudio && kind != TrackKindVideo {
				return "", "", false
			}
			return kind, rest[i+1:], true
		}
	}
	return "", "", false
}

// IsHoldKey reports whether the metadata key is the conference hold flag.
func (e *ConferenceMetadataUpdated) IsHoldKey() bool {
	return len(e.Key) >= 7 && e.Key[:7] == "ON_HOLD"
}

// ConferenceStreamMetadataUpdated reports per-stream metadata changes.
type ConferenceStreamMetadataUpdated struct {
	ConferenceEventBase
	StreamID string            `json:"streamId"`
	Metadata map[string]string `json:"metadata"`
}

// ConferenceNetworkIndicator reports connection quality per endpoint.
// It carries no version and is dispatched without sequencing.
type ConferenceNetworkIndicator struct {
	ConferenceEventBase
	Stats map[string]NetworkStats `json:"qualities"`
}

// ConferenceUnknown wraps an event with an unrecognized type discriminator
// so forward-incompatible events are surfaced rather than dropped.
type ConferenceUnknown struct {
	ConferenceEventBase
	Raw json.RawMessage `json:"-"`
}

// CallEventBase carries the fields common to all call events.
type CallEventBase struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	CallID         string    `json:"callId"`
	UserID         string    `json:"userId"`
	UserEndpointID string    `json:"userEndpointId"`
	Timestamp      time.Time `json:"timestamp"`
}

// CallBase exposes the shared header of a call event.
func (b *CallEventBase) CallBase() *CallEventBase { return b }

// CallEvent is any event scoped to a direct call.
type CallEvent interface {
	CallBase() *CallEventBase
}

// CallCreated reports an incoming call carrying the caller's SDP offer.
type CallCreated struct {
	CallEventBase
	SDPOffer   string            `json:"sdpOffer"`
	Target     string            `json:"target"`
	SIPHeaders map[string]string `json:"sipHeaders"`
}

// CallRinging reports the remote side acknowledging an outgoing call.
type CallRinging struct {
	CallEventBase
}

// CallAnswered carries the callee's SDP answer.
type CallAnswered struct {
	CallEventBase
	SDPAnswer string `json:"sdpAnswer"`
}

// CallRejected reports the callee declining the call.
type CallRejected struct {
	CallEventBase
	Reason string `json:"reason"`
}

// CallCancelled reports the caller abandoning the call before answer.
type CallCancelled struct {
	CallEventBase
}

// CallEnded reports an established call terminating.
type CallEnded struct {
	CallEventBase
	Reason string `json:"reason"`
}

// CallICECandidatesFound carries trickled remote ICE candidates for a call.
type CallICECandidatesFound struct {
	CallEventBase
	Candidates []ICECandidate `json:"iceCandidates"`
}

// SnapshotEvent is a camera snapshot workflow event, routed to the
// snapshot handler without sequencing.
type SnapshotEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	SnapshotID string          `json:"snapshotId"`
	UserID     string          `json:"userId"`
	Raw        json.RawMessage `json:"-"`
}
