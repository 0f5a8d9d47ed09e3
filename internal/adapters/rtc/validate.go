package rtc

import (
	"bytes"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Validator checks negotiation payloads before they are relayed. Payloads stay opaque
// to the relay; only their shape is verified.
type Validator struct{}

func (Validator) ValidateOffer(raw json.RawMessage) error {
	return validateDescription(raw, webrtc.SDPTypeOffer)
}

func (Validator) ValidateAnswer(raw json.RawMessage) error {
	return validateDescription(raw, webrtc.SDPTypeAnswer)
}

// ValidateCandidate requires a JSON document. An RTCIceCandidateInit object must carry
// a string candidate field; it may be empty, which marks the end of candidates.
func (Validator) ValidateCandidate(raw string) error {
	if raw == "" || !json.Valid([]byte(raw)) {
		return domain.Validation("candidate must be valid JSON")
	}
	trimmed := bytes.TrimSpace([]byte(raw))
	if trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return domain.Validation("candidate: %v", err)
	}
	if _, ok := fields["candidate"]; !ok {
		return domain.Validation("candidate: missing candidate field")
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(trimmed, &init); err != nil {
		return domain.Validation("candidate: %v", err)
	}
	return nil
}

func validateDescription(raw json.RawMessage, want webrtc.SDPType) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return domain.Validation("%s must be valid JSON", want)
	}
	if trimmed[0] != '{' {
		return nil
	}
	var head struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return domain.Validation("%s: %v", want, err)
	}
	if head.Type != "" && webrtc.NewSDPType(head.Type) != want {
		return domain.Validation("%s: unexpected type %q", want, head.Type)
	}
	if head.SDP != "" {
		desc := webrtc.SessionDescription{Type: want, SDP: head.SDP}
		if _, err := desc.Unmarshal(); err != nil {
			return domain.Validation("%s: malformed sdp: %v", want, err)
		}
	}
	return nil
}
