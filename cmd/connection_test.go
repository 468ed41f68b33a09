// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================
// WebSocket Bridge
// ============================================================

// newBridge serves a WebSocket that expects Basic auth, reads one request
// and answers with script(request)
func newBridge(t *testing.T, script func(conn *websocket.Conn, req fps.Telegram)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "fringe" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("bridge read failed: %v", err)
			return
		}
		if messageType != websocket.BinaryMessage {
			t.Errorf("request sent as message type %d, want binary", messageType)
		}
		req, err := fps.Decode(data)
		if err != nil {
			t.Errorf("request did not decode: %v", err)
			return
		}

		script(conn, req)

		// Wait for the client to answer the close handshake
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// encode runs on the bridge goroutine, so it reports with Errorf
func encode(t *testing.T, tel fps.Telegram) []byte {
	t.Helper()
	buf, err := fps.Encode(tel)
	if err != nil {
		t.Errorf("encode failed: %v", err)
	}
	return buf
}

// ============================================================
// WebSocket Connection Tests
// ============================================================

func TestWebSocketConnection_Telegrams(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn, req fps.Telegram) {
		seq := req.Head().Sequence
		first := encode(t, fps.NewAck(fps.AddrSampleTime, 0, seq, fps.ReasonOK, []int32{977}))
		second := encode(t, fps.NewTell(0x100, 1, seq+1, []int32{1, 2, 3}))
		split := len(second) / 2

		conn.WriteMessage(websocket.TextMessage, []byte("bridge ready"))
		// One message carries the first telegram and half of the second
		conn.WriteMessage(websocket.BinaryMessage, append(first, second[:split]...))
		conn.WriteMessage(websocket.BinaryMessage, second[split:])
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	core, logs := observer.New(zapcore.DebugLevel)
	conn, err := OpenWebSocketConnection(url, "fringe", "secret", false, zap.New(core))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conn.Close()

	if err := fps.WriteTelegram(conn, fps.NewGet(fps.AddrSampleTime, 0, 40)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader := fps.NewReader(conn)

	tel, err := reader.ReadTelegram()
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	ack, ok := tel.(*fps.AckTelegram)
	if !ok || ack.Sequence != 40 || len(ack.Data) != 1 || ack.Data[0] != 977 {
		t.Errorf("unexpected first telegram %+v", tel)
	}

	tel, err = reader.ReadTelegram()
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	tell, ok := tel.(*fps.TellTelegram)
	if !ok || tell.Address != 0x100 || tell.Index != 1 || len(tell.Data) != 3 || tell.Data[2] != 3 {
		t.Errorf("telegram split across messages not reassembled: %+v", tel)
	}

	if _, err := reader.ReadTelegram(); !errors.Is(err, io.EOF) {
		t.Errorf("normal close should read as io.EOF, got %v", err)
	}
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("read after close should return ErrConnectionClosed, got %v", err)
	}

	dropped := logs.FilterMessage("dropping websocket text frame").All()
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped text frame, got %d", len(dropped))
	}
	if text, ok := dropped[0].ContextMap()["text"].(string); !ok || text != "bridge ready" {
		t.Errorf("unexpected dropped frame fields %v", dropped[0].ContextMap())
	}
}

func TestWebSocketConnection_Unauthorized(t *testing.T) {
	url := newBridge(t, func(conn *websocket.Conn, req fps.Telegram) {})

	_, err := OpenWebSocketConnection(url, "fringe", "wrong", false, nil)
	if err == nil {
		t.Fatal("expected authentication failure")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("error should carry the HTTP status, got %v", err)
	}
}

func TestOpenWebSocketConnection_Scheme(t *testing.T) {
	if _, err := OpenWebSocketConnection("http://localhost/ws", "", "", false, nil); err == nil {
		t.Error("http:// should be rejected")
	}
}
