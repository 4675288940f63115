package conference

import (
	"context"
	"encoding/json"

	"github.com/meshcall/meshcall/internal/domain"
)

// apply folds one sequenced conference event into the local snapshot
// and notifies the application. It only sees events the sequencer has
// already ordered and filtered.
func (o *Orchestrator) apply(ctx context.Context, ev domain.ConferenceEvent) {
	switch e := ev.(type) {
	case *domain.ConferenceJoined:
		o.applyJoined(e)
	case *domain.ConferenceLeft:
		o.applyLeft(ctx, e)
	case *domain.ConferenceEnded:
		o.applyEnded(e)
	case *domain.ConferenceStreamPublished:
		o.applyStreamPublished(e)
	case *domain.ConferenceStreamUnpublished:
		o.applyStreamUnpublished(e)
	case *domain.ConferenceMetadataUpdated:
		o.applyMetadata(e)
	case *domain.ConferenceStreamMetadataUpdated:
		if o.cb.OnStreamMetadata != nil {
			o.cb.OnStreamMetadata(e)
		}
	case *domain.ConferenceNetworkIndicator:
		if o.cb.OnNetworkIndicator != nil {
			o.cb.OnNetworkIndicator(e)
		}
	case *domain.ConferenceUnknown:
		o.log.Debug().Str("type", e.Type).Msg("unrecognized conference event")
		if o.cb.OnUnknownEvent != nil {
			o.cb.OnUnknownEvent(e)
		}
	}
}

func (o *Orchestrator) applyJoined(e *domain.ConferenceJoined) {
	p := domain.ParticipantEndpoint{ID: e.UserEndpointID, UserID: e.UserID}

	o.mu.Lock()
	if o.current != nil {
		if _, ok := o.current.Participant(e.UserEndpointID); !ok {
			o.current.Participants = append(o.current.Participants, p)
		}
	}
	o.mu.Unlock()

	if o.cb.OnParticipantJoined != nil {
		o.cb.OnParticipantJoined(p)
	}
}

// applyLeft drops the participant and any of their streams we were
// viewing, since the server will not send separate unpublish events
// for an endpoint that is already gone.
func (o *Orchestrator) applyLeft(ctx context.Context, e *domain.ConferenceLeft) {
	o.mu.Lock()
	if o.current != nil {
		kept := o.current.Participants[:0]
		for _, p := range o.current.Participants {
			if p.ID != e.UserEndpointID {
				kept = append(kept, p)
			}
		}
		o.current.Participants = kept
	}
	o.mu.Unlock()

	for _, entry := range o.reg.Remote() {
		if entry.RemoteEndpointID != e.UserEndpointID {
			continue
		}
		o.removeView(entry.SessionID)
		o.notifyStream(entry.SessionID, domain.StreamStateRemoteDisconnected)
	}

	if o.cb.OnParticipantLeft != nil {
		o.cb.OnParticipantLeft(e.UserEndpointID)
	}
}

func (o *Orchestrator) applyEnded(e *domain.ConferenceEnded) {
	o.clearConference()
	if o.cb.OnConferenceEnded != nil {
		o.cb.OnConferenceEnded(e.ConferenceID, e.Reason)
	}
}

func (o *Orchestrator) applyStreamPublished(e *domain.ConferenceStreamPublished) {
	o.mu.Lock()
	if o.current != nil {
		for i := range o.current.Participants {
			if o.current.Participants[i].ID != e.UserEndpointID {
				continue
			}
			o.current.Participants[i].Streams = append(o.current.Participants[i].Streams, domain.ParticipantStream{
				ID:   e.StreamID,
				Kind: e.StreamKind,
			})
			break
		}
	}
	o.mu.Unlock()

	if o.cb.OnStreamPublished != nil {
		o.cb.OnStreamPublished(e)
	}
}

func (o *Orchestrator) applyStreamUnpublished(e *domain.ConferenceStreamUnpublished) {
	o.mu.Lock()
	if o.current != nil {
		for i := range o.current.Participants {
			if o.current.Participants[i].ID != e.UserEndpointID {
				continue
			}
			streams := o.current.Participants[i].Streams[:0]
			for _, s := range o.current.Participants[i].Streams {
				if s.ID != e.StreamID {
					streams = append(streams, s)
				}
			}
			o.current.Participants[i].Streams = streams
			break
		}
	}
	o.mu.Unlock()

	if _, viewing := o.reg.Find(e.StreamID); viewing {
		o.removeView(e.StreamID)
		o.notifyStream(e.StreamID, domain.StreamStateRemoteDisconnected)
	}

	if o.cb.OnStreamUnpublished != nil {
		o.cb.OnStreamUnpublished(e)
	}
}

func (o *Orchestrator) applyMetadata(e *domain.ConferenceMetadataUpdated) {
	if kind, streamID, ok := e.MutedTrack(); ok {
		muted := e.Operation == domain.MetadataSet

		o.mu.Lock()
		if o.current != nil {
			set := o.current.MutedAudioStreams
			if kind == domain.TrackKindVideo {
				set = o.current.MutedVideoStreams
			}
			if muted {
				set[streamID] = true
			} else {
				delete(set, streamID)
			}
		}
		o.mu.Unlock()

		if o.cb.OnTrackMuted != nil {
			o.cb.OnTrackMuted(kind, streamID, muted)
		}
		return
	}

	if e.IsHoldKey() {
		onHold := e.Operation == domain.MetadataSet
		if onHold {
			// The hold flag is only honored when its value is truthy.
			var v bool
			if err := json.Unmarshal(e.Value, &v); err == nil {
				onHold = v
			} else {
				var s string
				if err := json.Unmarshal(e.Value, &s); err == nil {
					onHold = s == "true"
				}
			}
		}

		o.mu.Lock()
		if o.current != nil {
			o.current.OnHold = onHold
		}
		o.mu.Unlock()

		if o.cb.OnHoldChanged != nil {
			o.cb.OnHoldChanged(onHold)
		}
	}
}
