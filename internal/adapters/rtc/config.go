// Package rtc holds the WebRTC pieces the relay needs without terminating media:
// ICE server configuration for clients and validation of relayed negotiation payloads.
package rtc

import (
	"github.com/dkeye/Huddle/internal/config"
	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Configuration converts configured ICE servers; an empty list yields the default STUN server.
func Configuration(cfg config.WebRTCConfig) webrtc.Configuration {
	if len(cfg.ICEServers) == 0 {
		return DefaultWebRTCConfig()
	}
	out := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(cfg.ICEServers))}
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out
}
