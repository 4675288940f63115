package events

import (
	"encoding/json"
	"fmt"

	"github.com/meshcall/meshcall/internal/domain"
)

// Decode maps a raw frame to its concrete event type using the "type"
// discriminator. Frames with an unrecognized discriminator come back as
// ConferenceUnknown so consumers see them instead of losing them.
func Decode(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event header: %w", err)
	}

	unmarshal := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return v, nil
	}

	switch head.Type {
	case domain.TypeConferenceJoined:
		return unmarshal(&domain.ConferenceJoined{})
	case domain.TypeConferenceLeft:
		return unmarshal(&domain.ConferenceLeft{})
	case domain.TypeConferenceEnded:
		return unmarshal(&domain.ConferenceEnded{})
	case domain.TypeConferenceStreamPublished:
		return unmarshal(&domain.ConferenceStreamPublished{})
	case domain.TypeConferenceStreamUnpub:
		return unmarshal(&domain.ConferenceStreamUnpublished{})
	case domain.TypeConferenceMetadata:
		return unmarshal(&domain.ConferenceMetadataUpdated{})
	case domain.TypeConferenceStreamMetadata:
		return unmarshal(&domain.ConferenceStreamMetadataUpdated{})
	case domain.TypeConferenceNetworkUpdated:
		return unmarshal(&domain.ConferenceNetworkIndicator{})

	case domain.TypeCallCreated:
		return unmarshal(&domain.CallCreated{})
	case domain.TypeCallRinging:
		return unmarshal(&domain.CallRinging{})
	case domain.TypeCallAnswered:
		return unmarshal(&domain.CallAnswered{})
	case domain.TypeCallRejected:
		return unmarshal(&domain.CallRejected{})
	case domain.TypeCallCancelled:
		return unmarshal(&domain.CallCancelled{})
	case domain.TypeCallEnded:
		return unmarshal(&domain.CallEnded{})
	case domain.TypeCallICEFound:
		return unmarshal(&domain.CallICECandidatesFound{})

	case domain.TypeSnapshotCameraRequested, domain.TypeSnapshotRequested,
		domain.TypeSnapshotApproved, domain.TypeSnapshotAcquired:
		ev := &domain.SnapshotEvent{}
		if _, err := unmarshal(ev); err != nil {
			return nil, err
		}
		ev.Raw = append([]byte(nil), data...)
		return ev, nil

	default:
		ev := &domain.ConferenceUnknown{}
		if err := json.Unmarshal(data, &ev.ConferenceEventBase); err != nil {
			return nil, fmt.Errorf("decode unknown event: %w", err)
		}
		ev.Raw = append([]byte(nil), data...)
		return ev, nil
	}
}
