// Package rtc adapts pion/webrtc peer connections to the MediaSession
// port consumed by the call and conference orchestrators.
package rtc

import (
	"fmt"
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// Factory builds peer connections configured with the fetched ICE
// servers and NACK interceptors.
type Factory struct {
	log zerolog.Logger

	mu         sync.Mutex
	iceServers []domain.ICEServer
	videoSink  io.Writer
}

// NewFactory returns a factory with no ICE servers configured yet.
func NewFactory(log zerolog.Logger) *Factory {
	return &Factory{log: log.With().Str("module", "rtc").Logger()}
}

// SetICEServers installs the STUN/TURN configuration used for new sessions.
func (f *Factory) SetICEServers(servers []domain.ICEServer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iceServers = servers
}

// SetVideoSink directs depacketized H264 video from remote tracks to w.
func (f *Factory) SetVideoSink(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoSink = w
}

// NewSession builds a peer connection for the given stream kind and role.
func (f *Factory) NewSession(kind domain.StreamKind, role domain.Role) (domain.MediaSession, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	reg := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	reg.Add(responder)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	reg.Add(generator)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(reg),
	)

	f.mu.Lock()
	servers := make([]pion.ICEServer, 0, len(f.iceServers))
	for _, s := range f.iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	sink := f.videoSink
	f.mu.Unlock()

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s, err := newSession(pc, kind, role, sink, f.log)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return s, nil
}
