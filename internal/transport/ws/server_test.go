package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dishrush.game/internal/protocol"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/world"
	"dishrush.game/internal/sim/worldtest"
)

func startServer(t *testing.T) (*world.World, string) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "ws_test", Seed: 3, Tuning: worldtest.QuietTuning()}, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	srv := httptest.NewServer(NewServer(w, log.New(testWriter{t}, "[ws] ", 0)).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return w, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	var b []byte
	switch m := v.(type) {
	case string:
		b = []byte(m)
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode base: %v", err)
		}
		if base.Type == typ && (match == nil || match(b)) {
			return b
		}
	}
}

func hello(name string) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
		Capabilities:    protocol.HelloCapabilities{Signals: true},
	}
}

func TestHandshake_Welcome(t *testing.T) {
	w, url := startServer(t)
	conn := dial(t, url)
	send(t, conn, hello("alice"))

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome, nil), &welcome); err != nil {
		t.Fatalf("unmarshal WELCOME: %v", err)
	}
	if welcome.AgentID == "" || welcome.WorldID != w.ID() {
		t.Fatalf("welcome=%+v", welcome)
	}
	if len(welcome.SessionID) != 36 {
		t.Fatalf("session id %q is not a uuid", welcome.SessionID)
	}
	if welcome.Catalogs.ItemsDigest != w.Catalogs().Items.DefsDigest {
		t.Fatalf("items digest mismatch")
	}
}

func TestHandshake_RejectsVersion(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	h := hello("bob")
	h.ProtocolVersion = "0.9"
	send(t, conn, h)

	var e protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError, nil), &e); err != nil {
		t.Fatalf("unmarshal ERROR: %v", err)
	}
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrProtoVersion)
	}
}

func TestHandshake_RejectsInvalidHello(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	send(t, conn, `{"type":"HELLO","protocol_version":"1.0","capabilities":{"max_queue":-1}}`)

	var e protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError, nil), &e); err != nil {
		t.Fatalf("unmarshal ERROR: %v", err)
	}
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrProtoBadRequest)
	}
}

func TestSession_InputsReachWorld(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	send(t, conn, hello("carol"))
	readUntil(t, conn, protocol.TypeWelcome, nil)

	send(t, conn, protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Seq:             1,
		Kind:            protocol.InputMove,
		X:               1,
	})
	readUntil(t, conn, protocol.TypeState, func(b []byte) bool {
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			return false
		}
		return st.AckSeq == 1 && st.Agent.Moving
	})
}

func TestSession_BadInputAnsweredWithError(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	send(t, conn, hello("dave"))
	readUntil(t, conn, protocol.TypeWelcome, nil)

	// CHECK_RESULT without a check id fails schema validation.
	send(t, conn, `{"type":"INPUT","protocol_version":"1.0","kind":"CHECK_RESULT","ok":true}`)
	var e protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError, nil), &e); err != nil {
		t.Fatalf("unmarshal ERROR: %v", err)
	}
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrProtoBadRequest)
	}

	send(t, conn, `{"type":"WHAT","protocol_version":"1.0"}`)
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError, nil), &e); err != nil {
		t.Fatalf("unmarshal ERROR: %v", err)
	}
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrProtoBadRequest)
	}
}
