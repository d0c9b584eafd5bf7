package signaling

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"call","data":{"target":"bob"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Event != EventCall || string(env.Data) != `{"target":"bob"}` {
		t.Fatalf("unexpected envelope %+v", env)
	}

	for _, frame := range []string{`not json`, `{"data":{}}`, `[]`} {
		if _, err := DecodeEnvelope([]byte(frame)); !errors.Is(err, errMalformed) {
			t.Errorf("DecodeEnvelope(%s) error = %v, want errMalformed", frame, err)
		}
	}
}

func TestDecodeRegisterForms(t *testing.T) {
	cases := map[string]string{
		`"alice"`:              "alice",
		`{"userId":"bob"}`:     "bob",
		`{"userId":" carol "}`: "carol",
	}
	for in, want := range cases {
		got, err := decodeRegister(json.RawMessage(in))
		if err != nil || got != want {
			t.Errorf("decodeRegister(%s) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := decodeRegister(json.RawMessage(`42`)); !errors.Is(err, errMalformed) {
		t.Fatalf("expected errMalformed, got %v", err)
	}
}

func TestEncodeLocalError(t *testing.T) {
	frame, err := EncodeEnvelope(EventCallError, localError(peerNotConnected))
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	if string(frame) != `{"event":"callError","data":{"error":"peer is not connected"}}` {
		t.Fatalf("unexpected frame %s", frame)
	}
}
