package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/crypto"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv      *httptest.Server
	auth     *auth.Manager
	engine   *orch.Orchestrator
	ledger   *storage.Ledger
	messages *storage.Messages
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ws.db")})
	require.NoError(t, err)

	dir := storage.NewDirectory(db)
	require.NoError(t, dir.CreateUser(ctx, &domain.User{ID: "alice", FirstName: "Alice"}))
	require.NoError(t, dir.CreateUser(ctx, &domain.User{ID: "bob", FirstName: "Bob"}))
	require.NoError(t, dir.CreateRoom(ctx, &domain.Room{ID: "r1", Name: "Standup", IsActive: true}))

	env := &testEnv{
		auth:     auth.NewManager("secret", "huddle", time.Hour),
		ledger:   storage.NewLedger(db),
		messages: storage.NewMessages(db, crypto.Plaintext{}),
	}
	env.engine = orch.New(orch.Deps{
		Registry:  app.NewRegistry(),
		Transport: app.NewHub(),
		Presence:  app.NewMemoryPresence(),
		Ledger:    env.ledger,
		Messages:  env.messages,
		Users:     dir,
		Rooms:     dir,
		Validator: rtc.Validator{},
	})
	ctl := NewSignalWSController(env.engine, Options{})

	r := gin.New()
	r.GET("/ws", auth.Middleware(env.auth), func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	env.srv = httptest.NewServer(r)

	t.Cleanup(func() {
		env.srv.Close()
		cancel()
		ctl.Wait()
		_ = storage.Close(db)
	})
	return env
}

func (e *testEnv) dial(t *testing.T, user domain.UserID) *websocket.Conn {
	t.Helper()
	token, err := e.auth.Issue(user, "")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Op        string          `json:"op"`
	RequestID string          `json:"requestId"`
	Code      string          `json:"code"`
	Error     string          `json:"error"`
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(v))
}

// expect reads frames until one of the given type arrives.
func expect(t *testing.T, c *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, c.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

const offerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestSignalingOverWebSocket(t *testing.T) {
	env := setup(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, map[string]any{"type": OpJoinRoom, "roomId": "r1"})
	f := expect(t, alice, orch.EventExistingParticipants)
	assert.JSONEq(t, `[]`, string(f.Data))

	send(t, bob, map[string]any{"type": OpJoinRoom, "roomId": "r1"})
	f = expect(t, bob, orch.EventExistingParticipants)
	assert.JSONEq(t, `[{"id":"alice","firstName":"Alice"}]`, string(f.Data))
	f = expect(t, alice, orch.EventUserJoined)
	assert.JSONEq(t, `{"id":"bob","firstName":"Bob"}`, string(f.Data))

	send(t, alice, map[string]any{
		"type":         OpSendOffer,
		"targetUserId": "bob",
		"offer":        map[string]string{"type": "offer", "sdp": offerSDP},
	})
	f = expect(t, bob, orch.EventReceiveOffer)
	var offer struct {
		CallerID string `json:"callerId"`
		Offer    struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		} `json:"offer"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &offer))
	assert.Equal(t, "alice", offer.CallerID)
	assert.Equal(t, offerSDP, offer.Offer.SDP)

	send(t, bob, map[string]any{"type": OpSendIceCandidate, "requestId": "req-7", "targetUserId": "alice", "candidate": "{not json"})
	f = expect(t, bob, "error")
	assert.Equal(t, OpSendIceCandidate, f.Op)
	assert.Equal(t, "req-7", f.RequestID)
	assert.Equal(t, string(domain.CodeValidation), f.Code)

	send(t, bob, map[string]any{"type": OpSendIceCandidate, "targetUserId": "alice", "candidate": `{"candidate":"candidate:1 1 udp 1 10.0.0.2 5000 typ host","sdpMid":"0"}`})
	f = expect(t, alice, orch.EventReceiveIceCandidate)
	assert.Contains(t, string(f.Data), `"callerId":"bob"`)

	send(t, alice, map[string]any{"type": OpSendMessage, "content": "hello"})
	for _, c := range []*websocket.Conn{alice, bob} {
		f = expect(t, c, orch.EventReceiveMessage)
		var m orch.ChatMessage
		require.NoError(t, json.Unmarshal(f.Data, &m))
		assert.Equal(t, "hello", m.Content)
		assert.Equal(t, "Alice", m.SenderName)
	}
	stored, err := env.messages.ListByRoom(context.Background(), "r1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	send(t, bob, map[string]any{"type": OpPing})
	expect(t, bob, "pong")

	send(t, bob, map[string]any{"type": OpWhoAmI})
	f = expect(t, bob, "whoami")
	assert.JSONEq(t, `{"userId":"bob","firstName":"Bob","roomId":"r1"}`, string(f.Data))

	require.NoError(t, bob.Close())
	f = expect(t, alice, orch.EventUserLeft)
	assert.JSONEq(t, `{"userId":"bob"}`, string(f.Data))
}

func TestSignalErrors(t *testing.T) {
	env := setup(t)
	alice := env.dial(t, "alice")

	send(t, alice, map[string]any{"type": OpSendMessage, "requestId": "1", "content": "hi"})
	f := expect(t, alice, "error")
	assert.Equal(t, string(domain.CodeValidation), f.Code)

	send(t, alice, map[string]any{"type": OpJoinRoom, "roomId": "nope"})
	f = expect(t, alice, "error")
	assert.Equal(t, string(domain.CodeNotFound), f.Code)

	send(t, alice, map[string]any{"type": "Dance"})
	f = expect(t, alice, "error")
	assert.Equal(t, "Dance", f.Op)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{")))
	f = expect(t, alice, "error")
	assert.Equal(t, "bad_payload", f.Error)
}

func TestSignalRequiresToken(t *testing.T) {
	env := setup(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCandidateText(t *testing.T) {
	assert.Equal(t, `{"a":1}`, candidateText(json.RawMessage(`"{\"a\":1}"`)))
	assert.Equal(t, `{"a":1}`, candidateText(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, "", candidateText(nil))
}
