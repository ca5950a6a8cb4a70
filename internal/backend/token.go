package backend

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
)

var ErrMalformedToken = errors.New("malformed token")

// EncodeToken turns a local description into the text a user copies to the
// other side: base64 of the description's JSON.
func EncodeToken(desc webrtc.SessionDescription) (token string, err error) {
	defer err2.Handle(&err)

	raw := try.To1(json.Marshal(desc))
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeToken parses a token produced by EncodeToken and checks that it is
// the expected half of the handshake.
func DecodeToken(token string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription

	token = strings.TrimSpace(token)
	if token == "" {
		return desc, fmt.Errorf("%w: empty", ErrMalformedToken)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return desc, fmt.Errorf("%w: invalid token format: %v", ErrMalformedToken, err)
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("%w: invalid session description: %v", ErrMalformedToken, err)
	}
	if desc.Type != want {
		return desc, fmt.Errorf("%w: expected %s token, got %s", ErrMalformedToken, want, desc.Type)
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("%w: session description has no SDP", ErrMalformedToken)
	}
	return desc, nil
}
