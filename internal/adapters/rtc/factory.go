// Package rtc builds and drives pion peer connections for the mesh. It
// implements core.LinkFactory and core.PeerLink; nothing above it sees pion.
package rtc

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/huddlekit/huddle/internal/core"
	"github.com/huddlekit/huddle/internal/domain"
)

// MediaSource is the shared local capture bundle as the factory needs it:
// codecs for the engine, track attach/detach per connection. Nil means a
// receive-only client.
type MediaSource interface {
	RegisterCodecs(me *webrtc.MediaEngine) error
	Attach(pc *webrtc.PeerConnection) error
	Detach(pc *webrtc.PeerConnection)
}

type FactoryConfig struct {
	ICEServers []domain.ICEServer
	Media      MediaSource
	Logger     zerolog.Logger
}

// Factory mints links sharing one API instance, one media engine and one
// ICE configuration.
type Factory struct {
	api   *webrtc.API
	cfg   webrtc.Configuration
	media MediaSource
	log   zerolog.Logger
}

func NewFactory(cfg FactoryConfig) (*Factory, error) {
	log := cfg.Logger.With().Str("module", "rtc").Logger()

	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		conv, err := iceServer(s)
		if err != nil {
			log.Warn().Err(err).Msg("ice server skipped")
			continue
		}
		servers = append(servers, conv)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no usable ice servers", core.ErrConnection)
	}

	engine := &webrtc.MediaEngine{}
	if cfg.Media != nil {
		if err := cfg.Media.RegisterCodecs(engine); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	} else if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settings := webrtc.SettingEngine{LoggerFactory: zerologFactory{log: log}}
	settings.SetICETimeouts(5*time.Second, 25*time.Second, 4*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithSettingEngine(settings),
	)
	return &Factory{
		api:   api,
		cfg:   webrtc.Configuration{ICEServers: servers},
		media: cfg.Media,
		log:   log,
	}, nil
}

// NewLink creates the peer connection and wires local media. The link does
// nothing until Start.
func (f *Factory) NewLink(peer domain.PeerID, initiator bool, ev core.LinkEvents) (core.PeerLink, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", core.ErrPeerNegotiation, err)
	}

	if f.media != nil {
		if err := f.media.Attach(pc); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%w: attach local media: %v", core.ErrPeerNegotiation, err)
		}
	} else {
		// receive-only still has to ask for media in the SDP
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("%w: add %s transceiver: %v", core.ErrPeerNegotiation, kind, err)
			}
		}
	}

	return &Link{
		peer:      peer,
		pc:        pc,
		initiator: initiator,
		ev:        ev,
		media:     f.media,
		log:       f.log.With().Str("peer", string(peer)).Logger(),
	}, nil
}
