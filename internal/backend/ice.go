package backend

import (
	"fmt"

	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// ICEServers validates each URL and builds the peer connection server list.
// Credentials are attached to TURN entries only.
func ICEServers(urls []string, username, credential string) ([]webrtc.ICEServer, error) {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		u, err := ice.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ICE server %q: %w", raw, err)
		}

		srv := webrtc.ICEServer{URLs: []string{raw}}
		if u.Scheme == ice.SchemeTypeTURN || u.Scheme == ice.SchemeTypeTURNS {
			if username == "" {
				return nil, fmt.Errorf("TURN server %q needs a username", raw)
			}
			srv.Username = username
			srv.Credential = credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}
	return servers, nil
}
