package domain

import (
	"errors"
	"fmt"
)

// Precondition and transport sentinels. Precondition failures are returned
// synchronously to the caller and never retried.
var (
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrEndpointNotCreated   = errors.New("endpoint not created")
	ErrNotInConference      = errors.New("not in a conference")
	ErrMissingSDPAnswer     = errors.New("missing sdp answer")
	ErrCaptureFailure       = errors.New("media capture failure")
	ErrConnection           = errors.New("connection error")
	ErrNoInternetConnection = errors.New("no internet connection")
	ErrUnauthorized         = errors.New("unauthorized request")
	ErrInternal             = errors.New("internal error")
)

// Stage identifies where in an SDP negotiation pipeline a failure occurred.
type Stage string

const (
	StageCapture           Stage = "capture"
	StageMakeOffer         Stage = "makeOffer"
	StageMakeAnswer        Stage = "makeAnswer"
	StageLocalDescription  Stage = "setLocalDescription"
	StageRemoteDescription Stage = "setRemoteDescription"
	StageSignaling         Stage = "signaling"
	StageICE               Stage = "iceCandidates"
)

// MissingPeerConnectionError reports an event or operation referencing a
// media session that is not (or no longer) registered.
type MissingPeerConnectionError struct {
	SessionID string
}

func (e *MissingPeerConnectionError) Error() string {
	return fmt.Sprintf("no peer connection for session %s", e.SessionID)
}

// HTTPError is a non-2xx signaling response.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d", e.Code)
}

// PublishStreamError reports a failure while publishing a local stream.
type PublishStreamError struct {
	Stage  Stage
	Detail string
	Err    error
}

func (e *PublishStreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish stream failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("publish stream failed at %s: %s", e.Stage, e.Detail)
}

func (e *PublishStreamError) Unwrap() error { return e.Err }

// RemoteStreamError reports a failure while viewing or stopping a remote stream.
type RemoteStreamError struct {
	Stage  Stage
	Detail string
	Err    error
}

func (e *RemoteStreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote stream failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("remote stream failed at %s: %s", e.Stage, e.Detail)
}

func (e *RemoteStreamError) Unwrap() error { return e.Err }

// CallError reports a failure in the direct-call signaling flow.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// MediaPermissionError reports denied capture permission for a track kind.
type MediaPermissionError struct {
	Kind TrackKind
}

func (e *MediaPermissionError) Error() string {
	return fmt.Sprintf("%s permission denied", e.Kind)
}

// Category is a user-facing error bucket. Internal distinctions (which SDP
// stage failed) are collapsed here but retained on the error itself.
type Category string

const (
	CategoryPermission     Category = "permissionRequired"
	CategoryAuthentication Category = "authenticationFailure"
	CategoryNetwork        Category = "networkError"
	CategoryRejected       Category = "callRejected"
	CategoryUnknown        Category = "unknownFailure"
)

// UserFacing maps any error to its display category.
func UserFacing(err error) Category {
	var perm *MediaPermissionError
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.As(err, &perm):
		return CategoryPermission
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotLoggedIn):
		return CategoryAuthentication
	case errors.Is(err, ErrNoInternetConnection), errors.Is(err, ErrConnection):
		return CategoryNetwork
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == 401 || httpErr.Code == 403 {
			return CategoryAuthentication
		}
		return CategoryNetwork
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return CategoryRejected
	}
	return CategoryUnknown
}
