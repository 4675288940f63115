package events

import (
	"testing"

	"github.com/meshcall/meshcall/internal/domain"
)

func TestDecode_ConferenceStreamPublished(t *testing.T) {
	data := []byte(`{
		"type": "ConferenceStreamPublishedEvent",
		"id": "ev1",
		"conferenceId": "conf1",
		"conferenceVersion": 7,
		"userEndpointId": "ep2",
		"streamId": "st1",
		"streamType": "CAM"
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	pub, ok := ev.(*domain.ConferenceStreamPublished)
	if !ok {
		t.Fatalf("expected ConferenceStreamPublished, got %T", ev)
	}
	if pub.StreamID != "st1" || pub.StreamKind != domain.StreamKindCam {
		t.Errorf("unexpected payload %+v", pub)
	}
	if pub.Base().Version == nil || *pub.Base().Version != 7 {
		t.Errorf("expected version 7, got %v", pub.Base().Version)
	}
}

func TestDecode_NetworkIndicatorHasNoVersion(t *testing.T) {
	data := []byte(`{
		"type": "ConferenceNetworkIndicatorUpdatedEvent",
		"conferenceId": "conf1",
		"qualities": {"ep2": {"avgJitter": 1.5, "avgRtt": 20, "avgQuality": 4, "grade": "OPTIMAL"}}
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ind, ok := ev.(*domain.ConferenceNetworkIndicator)
	if !ok {
		t.Fatalf("expected ConferenceNetworkIndicator, got %T", ev)
	}
	if ind.Base().Version != nil {
		t.Error("expected nil version on network indicator")
	}
	if ind.Stats["ep2"].Grade != domain.NetworkGradeOptimal {
		t.Errorf("unexpected stats %+v", ind.Stats)
	}
}

func TestDecode_CallEvent(t *testing.T) {
	data := []byte(`{
		"type": "IceCandidatesFoundEvent",
		"callId": "c1",
		"iceCandidates": [{"candidate": "candidate:1", "sdpMid": "0", "sdpMLineIndex": 0}]
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ice, ok := ev.(*domain.CallICECandidatesFound)
	if !ok {
		t.Fatalf("expected CallICECandidatesFound, got %T", ev)
	}
	if ice.CallID != "c1" || len(ice.Candidates) != 1 {
		t.Errorf("unexpected payload %+v", ice)
	}
}

func TestDecode_UnknownTypeIsWrappedNotDropped(t *testing.T) {
	data := []byte(`{"type": "ConferenceRecordingStartedEvent", "conferenceId": "conf1"}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	unk, ok := ev.(*domain.ConferenceUnknown)
	if !ok {
		t.Fatalf("expected ConferenceUnknown, got %T", ev)
	}
	if unk.Base().Type != "ConferenceRecordingStartedEvent" {
		t.Errorf("expected discriminator preserved, got %q", unk.Base().Type)
	}
	if len(unk.Raw) == 0 {
		t.Error("expected raw payload to be retained")
	}
}

func TestDecode_MutedTrackKey(t *testing.T) {
	data := []byte(`{
		"type": "ConferenceMetadataUpdatedEvent",
		"conferenceId": "conf1",
		"conferenceVersion": 3,
		"key": "TRACK_MUTED/audio/st1",
		"operation": "SET"
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	md := ev.(*domain.ConferenceMetadataUpdated)
	kind, streamID, ok := md.MutedTrack()
	if !ok {
		t.Fatal("expected a mute key")
	}
	if kind != domain.TrackKindAudio || streamID != "st1" {
		t.Errorf("unexpected parse %v %v", kind, streamID)
	}
	if md.Operation != domain.MetadataSet {
		t.Errorf("unexpected operation %v", md.Operation)
	}
}
