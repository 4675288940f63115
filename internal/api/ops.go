package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/meshcall/meshcall/internal/domain"
)

// Login authenticates the user and stores the resulting session.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthSession, error) {
	if req.ClientID == "" {
		req.ClientID = c.cfg.ClientID
	}
	var resp domain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "security/authenticate/login", req, &resp, false); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	sess := &domain.AuthSession{
		UserID:       resp.UserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.log.Info().Str("user", sess.UserID).Msg("logged in")
	out := *sess
	return &out, nil
}

// GetICEServers fetches the STUN/TURN configuration.
func (c *Client) GetICEServers(ctx context.Context) ([]domain.ICEServer, error) {
	var resp struct {
		ICEServers []domain.ICEServer `json:"iceServers"`
	}
	if err := c.do(ctx, http.MethodGet, "rtc-api/iceServers", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("get ice servers: %w", err)
	}
	return resp.ICEServers, nil
}

// Calls.

func (c *Client) Call(ctx context.Context, req domain.CallRequest) error {
	return c.post(ctx, "rtc-api/calls/call", req)
}

func (c *Client) AnswerCall(ctx context.Context, req domain.CallAnswerRequest) error {
	return c.post(ctx, "rtc-api/calls/answer", req)
}

func (c *Client) RejectCall(ctx context.Context, req domain.CallRejectRequest) error {
	return c.post(ctx, "rtc-api/calls/reject", req)
}

func (c *Client) CallRinging(ctx context.Context, req domain.CallRingingRequest) error {
	return c.post(ctx, "rtc-api/calls/ringing", req)
}

func (c *Client) HangupCall(ctx context.Context, req domain.CallHangupRequest) error {
	return c.post(ctx, "rtc-api/calls/hangup", req)
}

func (c *Client) CancelCall(ctx context.Context, req domain.CallCancelRequest) error {
	return c.post(ctx, "rtc-api/calls/cancel", req)
}

func (c *Client) AddCallICECandidates(ctx context.Context, req domain.CallICECandidatesRequest) error {
	return c.post(ctx, "rtc-api/calls/addIceCandidates", req)
}

// Conferences.

func (c *Client) CreateConference(ctx context.Context, req domain.CreateConferenceRequest) (domain.ConferenceSummary, error) {
	var resp domain.ConferenceSummary
	if err := c.do(ctx, http.MethodPost, "rtc-api/conferences/create", req, &resp, true); err != nil {
		return domain.ConferenceSummary{}, fmt.Errorf("create conference: %w", err)
	}
	if resp.ID == "" {
		resp.ID = req.ConferenceID
	}
	return resp, nil
}

func (c *Client) EndConference(ctx context.Context, req domain.EndConferenceRequest) error {
	return c.post(ctx, "rtc-api/conferences/end", req)
}

func (c *Client) JoinConference(ctx context.Context, req domain.JoinConferenceRequest) error {
	return c.post(ctx, "rtc-api/conferences/join", req)
}

func (c *Client) LeaveConference(ctx context.Context, req domain.LeaveConferenceRequest) error {
	return c.post(ctx, "rtc-api/conferences/leave", req)
}

func (c *Client) GetConferences(ctx context.Context) ([]domain.ConferenceSummary, error) {
	var resp []domain.ConferenceSummary
	if err := c.do(ctx, http.MethodGet, "rtc-api/conferences", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("get conferences: %w", err)
	}
	return resp, nil
}

func (c *Client) GetConferenceSummary(ctx context.Context, id string) (domain.ConferenceSummary, error) {
	var resp domain.ConferenceSummary
	if err := c.do(ctx, http.MethodGet, "rtc-api/conferences/"+id+"/summary", nil, &resp, true); err != nil {
		return domain.ConferenceSummary{}, fmt.Errorf("get conference summary: %w", err)
	}
	return resp, nil
}

func (c *Client) GetConferenceDetails(ctx context.Context, id string) (*domain.ConferenceDetails, error) {
	var resp domain.ConferenceDetails
	if err := c.do(ctx, http.MethodGet, "rtc-api/conferences/"+id, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("get conference details: %w", err)
	}
	return &resp, nil
}

// simpleViewWire is the nested users/endpoints/streams shape of the
// simpleView endpoint.
type simpleViewWire struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Version      int    `json:"version"`
	Participants []struct {
		ID        string `json:"id"`
		Endpoints []struct {
			ID      string `json:"id"`
			Streams []struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"streams"`
		} `json:"endpoints"`
	} `json:"participants"`
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// GetConferenceSimpleView fetches the authoritative conference state,
// flattened to one entry per remote endpoint.
func (c *Client) GetConferenceSimpleView(ctx context.Context, id string) (*domain.ConferenceSnapshot, error) {
	var wire simpleViewWire
	if err := c.do(ctx, http.MethodGet, "rtc-api/conferences/"+id+"/simpleView", nil, &wire, true); err != nil {
		return nil, fmt.Errorf("get conference simple view: %w", err)
	}

	snap := domain.NewConferenceSnapshot(wire.ID, domain.ParseConferenceMode(wire.Mode), wire.Version)
	for _, p := range wire.Participants {
		for _, ep := range p.Endpoints {
			pe := domain.ParticipantEndpoint{ID: ep.ID, UserID: p.ID}
			for _, s := range ep.Streams {
				pe.Streams = append(pe.Streams, domain.ParticipantStream{
					ID:   s.ID,
					Kind: domain.ParseStreamKind(s.Type),
				})
			}
			snap.Participants = append(snap.Participants, pe)
		}
	}
	for key := range wire.Metadata {
		switch {
		case strings.HasPrefix(key, "TRACK_MUTED/"):
			parts := strings.Split(key, "/")
			if len(parts) != 3 {
				continue
			}
			if parts[1] == string(domain.TrackKindVideo) {
				snap.MutedVideoStreams[parts[2]] = true
			} else {
				snap.MutedAudioStreams[parts[2]] = true
			}
		case strings.HasPrefix(key, domain.MetadataKeyOnHold):
			snap.OnHold = true
		}
	}
	return snap, nil
}

func (c *Client) PublishStream(ctx context.Context, req domain.PublishStreamRequest) (domain.PublishStreamResponse, error) {
	var resp domain.PublishStreamResponse
	if err := c.do(ctx, http.MethodPost, "rtc-api/conferences/publishStream", req, &resp, true); err != nil {
		return domain.PublishStreamResponse{}, fmt.Errorf("publish stream: %w", err)
	}
	if resp.SDPAnswer == "" {
		return domain.PublishStreamResponse{}, domain.ErrMissingSDPAnswer
	}
	return resp, nil
}

func (c *Client) UnpublishStream(ctx context.Context, req domain.UnpublishStreamRequest) error {
	return c.post(ctx, "rtc-api/conferences/unpublishStream", req)
}

func (c *Client) ViewStream(ctx context.Context, req domain.ViewStreamRequest) (domain.ViewStreamResponse, error) {
	var resp domain.ViewStreamResponse
	if err := c.do(ctx, http.MethodPost, "rtc-api/conferences/viewStream", req, &resp, true); err != nil {
		return domain.ViewStreamResponse{}, fmt.Errorf("view stream: %w", err)
	}
	if resp.SDPAnswer == "" {
		return domain.ViewStreamResponse{}, domain.ErrMissingSDPAnswer
	}
	if resp.ViewerID == "" {
		resp.ViewerID = req.ViewerID
	}
	return resp, nil
}

func (c *Client) StopViewStream(ctx context.Context, req domain.StopViewStreamRequest) error {
	return c.post(ctx, "rtc-api/conferences/stopViewStream", req)
}

func (c *Client) UpdateConferenceMetadata(ctx context.Context, req domain.UpdateMetadataRequest) error {
	return c.post(ctx, "rtc-api/conferences/updateMetadata", req)
}

func (c *Client) AddPublishStreamICECandidates(ctx context.Context, req domain.PublishStreamICECandidatesRequest) error {
	return c.post(ctx, "rtc-api/conferences/addPublishStreamIceCandidates", req)
}

func (c *Client) AddViewStreamICECandidates(ctx context.Context, req domain.ViewStreamICECandidatesRequest) error {
	return c.post(ctx, "rtc-api/conferences/addViewStreamIceCandidates", req)
}

// Endpoints.

func (c *Client) CreateEndpoint(ctx context.Context, req domain.CreateEndpointRequest) (domain.CreateEndpointResponse, error) {
	var resp domain.CreateEndpointResponse
	if err := c.do(ctx, http.MethodPost, "rtc-api/users/endpoints/register", req, &resp, true); err != nil {
		return domain.CreateEndpointResponse{}, fmt.Errorf("create endpoint: %w", err)
	}
	if resp.UserEndpointID == "" {
		resp.UserEndpointID = req.UserEndpointID
	}
	if resp.KeepAliveSec == 0 {
		resp.KeepAliveSec = req.KeepAliveSec
	}
	return resp, nil
}

func (c *Client) GetEndpoints(ctx context.Context) ([]domain.EndpointInfo, error) {
	var resp []domain.EndpointInfo
	if err := c.do(ctx, http.MethodGet, "rtc-api/users/endpoints", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("get endpoints: %w", err)
	}
	return resp, nil
}

func (c *Client) GetEndpointDetails(ctx context.Context, id string) (domain.EndpointInfo, error) {
	var resp domain.EndpointInfo
	if err := c.do(ctx, http.MethodGet, "rtc-api/users/endpoints/"+id, nil, &resp, true); err != nil {
		return domain.EndpointInfo{}, fmt.Errorf("get endpoint details: %w", err)
	}
	return resp, nil
}

func (c *Client) KeepAlive(ctx context.Context, req domain.KeepAliveRequest) error {
	return c.post(ctx, "rtc-api/users/endpoints/keepalive", req)
}

func (c *Client) UnregisterEndpoint(ctx context.Context, req domain.UnregisterEndpointRequest) error {
	return c.post(ctx, "rtc-api/users/endpoints/unregister", req)
}

// Snapshots.

func (c *Client) CameraRequestRespond(ctx context.Context, req domain.CameraRespondRequest) error {
	return c.post(ctx, "rtc-api/snapshots/cameraRequestRespond", req)
}

// UploadSnapshot posts an acquired snapshot image as multipart form data.
func (c *Client) UploadSnapshot(ctx context.Context, up domain.SnapshotUpload) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"snapshotId":     up.SnapshotID,
		"snapshotSuffix": up.SnapshotSuffix,
		"snapshotType":   up.SnapshotType,
		"userId":         up.UserID,
		"userEndpointId": up.UserEndpointID,
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("write snapshot field: %w", err)
		}
	}
	part, err := w.CreateFormFile("image", "jpeg")
	if err != nil {
		return fmt.Errorf("create snapshot part: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return fmt.Errorf("write snapshot image: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize snapshot form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("rtc-api/snapshots/upload"), &buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return domain.ErrNotLoggedIn
	}
	req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode)
	}
	return nil
}

// post sends a JSON body to an authenticated endpoint, discarding any
// response payload.
func (c *Client) post(ctx context.Context, path string, body any) error {
	if err := c.do(ctx, http.MethodPost, path, body, nil, true); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
