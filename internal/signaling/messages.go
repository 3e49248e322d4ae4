package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type messageType string

const (
	// Client -> relay.
	messageTypeLogin     messageType = "login"
	messageTypeOffer     messageType = "offer"
	messageTypeAnswer    messageType = "answer"
	messageTypeCandidate messageType = "candidate"
	messageTypeChat      messageType = "chat"

	// Relay -> client.
	messageTypePeers messageType = "peers"
	messageTypeJoin  messageType = "join"
	messageTypeLeave messageType = "leave"
)

// signalMessage is the wire envelope, both directions. Exactly one payload
// field is set per type; the opaque fields (offer/answer/candidate/message)
// are forwarded verbatim.
//
// From is only ever written by the relay, stamped with the sender's
// registered id. Inbound envelopes carrying From are rejected so a client
// cannot impersonate another peer in a forwarded message.
type signalMessage struct {
	Type messageType `json:"type"`

	ID  string   `json:"id,omitempty"`  // login (in), join/leave (out)
	IDs []string `json:"ids,omitempty"` // peers (out)

	Target string `json:"target,omitempty"` // routed messages (in)
	From   string `json:"from,omitempty"`   // routed messages (out)

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

func parseSignalMessage(data []byte) (signalMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg signalMessage
	if err := dec.Decode(&msg); err != nil {
		return signalMessage{}, err
	}
	if err := msg.validateInbound(); err != nil {
		return signalMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return signalMessage{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

func (m signalMessage) validateInbound() error {
	if m.From != "" {
		return fmt.Errorf("%s message must not set from", m.Type)
	}
	if len(m.IDs) != 0 {
		return fmt.Errorf("%s message must not set ids", m.Type)
	}

	switch m.Type {
	case messageTypeLogin:
		// An empty id is tolerated here; the dispatcher ignores it and the
		// connection simply stays unannounced.
		if m.Target != "" || m.Offer != nil || m.Answer != nil || m.Candidate != nil || m.Message != nil {
			return fmt.Errorf("login message has unexpected fields")
		}
	case messageTypeOffer:
		if m.Target == "" {
			return fmt.Errorf("offer message missing target")
		}
		if m.Offer == nil {
			return fmt.Errorf("offer message missing offer")
		}
		if m.ID != "" || m.Answer != nil || m.Candidate != nil || m.Message != nil {
			return fmt.Errorf("offer message has unexpected fields")
		}
	case messageTypeAnswer:
		if m.Target == "" {
			return fmt.Errorf("answer message missing target")
		}
		if m.Answer == nil {
			return fmt.Errorf("answer message missing answer")
		}
		if m.ID != "" || m.Offer != nil || m.Candidate != nil || m.Message != nil {
			return fmt.Errorf("answer message has unexpected fields")
		}
	case messageTypeCandidate:
		if m.Target == "" {
			return fmt.Errorf("candidate message missing target")
		}
		if m.Candidate == nil {
			return fmt.Errorf("candidate message missing candidate")
		}
		if m.ID != "" || m.Offer != nil || m.Answer != nil || m.Message != nil {
			return fmt.Errorf("candidate message has unexpected fields")
		}
	case messageTypeChat:
		if m.Target == "" {
			return fmt.Errorf("chat message missing target")
		}
		if m.Message == nil {
			return fmt.Errorf("chat message missing message")
		}
		if m.ID != "" || m.Offer != nil || m.Answer != nil || m.Candidate != nil {
			return fmt.Errorf("chat message has unexpected fields")
		}
	case messageTypePeers, messageTypeJoin, messageTypeLeave:
		return fmt.Errorf("%s is a server-emitted message type", m.Type)
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// forwarded builds the relay->recipient copy of a routed message: same opaque
// payload, target stripped, sender identity stamped from the registry.
func (m signalMessage) forwarded(from string) signalMessage {
	return signalMessage{
		Type:      m.Type,
		From:      from,
		Offer:     m.Offer,
		Answer:    m.Answer,
		Candidate: m.Candidate,
		Message:   m.Message,
	}
}

func peersMessage(ids []string) signalMessage {
	if ids == nil {
		ids = []string{}
	}
	return signalMessage{Type: messageTypePeers, IDs: ids}
}

func joinMessage(id string) signalMessage {
	return signalMessage{Type: messageTypeJoin, ID: id}
}

func leaveMessage(id string) signalMessage {
	return signalMessage{Type: messageTypeLeave, ID: id}
}
