// Package signaling relays peer-connection control messages between registered
// identities over websockets.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names.
const (
	EventRegister     = "register"
	EventCall         = "call"
	EventCallAnswered = "callAnswered"
	EventCallError    = "callError"
	EventICECandidate = "ice-candidate"
	EventEndCall      = "endCall"
	EventCallRejected = "callRejected"
	EventAcceptCall   = "acceptCall"
	EventLeaveWaiting = "leaveWaiting"
)

// Outbound-only event names. callAnswered, callError, ice-candidate and
// callRejected are reused in both directions.
const (
	EventIncomingCall = "incomingCall"
	EventCallEnded    = "callEnded"
	EventCallAccepted = "callAccepted"
)

// peerNotConnected is sent back when an answer cannot be delivered.
const peerNotConnected = "peer is not connected"

var errMalformed = errors.New("malformed signaling message")

// Envelope is the frame exchanged on the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses a websocket frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", errMalformed)
	}
	return env, nil
}

// EncodeEnvelope builds a websocket frame.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodeRegister accepts either a bare identity string or {"userId": "..."}.
func decodeRegister(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	return strings.TrimSpace(obj.UserID), nil
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("%w: missing data", errMalformed)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return v, nil
}

// Inbound payloads.

type callIn struct {
	Target string          `json:"target"`
	Offer  json.RawMessage `json:"offer,omitempty"`
}

type callAnsweredIn struct {
	Caller string          `json:"caller"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type callErrorIn struct {
	Target string          `json:"target"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type iceCandidateIn struct {
	Target    string          `json:"target"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type endCallIn struct {
	Target string `json:"target"`
}

type callRejectedIn struct {
	Caller string `json:"caller"`
}

type acceptCallIn struct {
	Caller string          `json:"caller"`
	Offer  json.RawMessage `json:"offer,omitempty"`
}

type leaveWaitingIn struct {
	UserID string `json:"userId"`
}

// Outbound payloads.

// IncomingCall notifies a callee of an offer.
type IncomingCall struct {
	Caller string          `json:"caller"`
	Offer  json.RawMessage `json:"offer,omitempty"`
}

// CallAnswered delivers an answer to the caller.
type CallAnswered struct {
	Answerer string          `json:"answerer"`
	Answer   json.RawMessage `json:"answer,omitempty"`
}

// CallError reports a failure, either forwarded from a peer or raised locally.
type CallError struct {
	Sender string          `json:"sender,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// ICECandidate forwards a connectivity candidate.
type ICECandidate struct {
	Sender    string          `json:"sender"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// CallEnded notifies a peer that the call was terminated.
type CallEnded struct {
	Caller string `json:"caller"`
}

// CallRejected notifies a caller that the callee declined.
type CallRejected struct {
	Rejector string `json:"rejector"`
}

// CallAccepted notifies a caller that the callee accepted.
type CallAccepted struct {
	Acceptor string `json:"acceptor"`
}

func localError(msg string) CallError {
	raw, _ := json.Marshal(msg)
	return CallError{Error: raw}
}
