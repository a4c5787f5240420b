package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"neonquiz/internal/app"
	"neonquiz/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Quiz) {
	t.Helper()
	quiz := app.NewQuiz(domain.QuestionBank{
		BuzzerRound: []domain.Question{
			{ID: "b1", Question: "Element with symbol O?", Answer: "oxygen"},
		},
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(quiz).ServeWS)
	return httptest.NewServer(mux), quiz
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

// readUntil drains broadcast messages until one of the wanted type arrives.
// Broadcast snapshots and unicast acks share the send channel, so their
// relative order is not fixed.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readNext(t, conn)
		if typ == want {
			return payload
		}
	}
	t.Fatalf("never received %q", want)
	return nil
}

func TestWebSocketRegisterAndBuzzFlow(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// Full snapshot arrives before any client event.
	typ, payload := readNext(t, conn)
	if typ != "stateUpdate" {
		t.Fatalf("expected initial stateUpdate, got %s", typ)
	}
	if payload["currentRound"].(float64) != 0 {
		t.Fatalf("expected lobby round, got %v", payload["currentRound"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "registerTeam", "payload": "Team Alpha"}); err != nil {
		t.Fatalf("write registerTeam: %v", err)
	}
	team := readUntil(t, conn, "teamRegistered")
	if team["id"] != "team-alpha" {
		t.Fatalf("expected team-alpha ack, got %v", team)
	}

	start := map[string]any{
		"type": "adminAction",
		"payload": map[string]any{
			"type":    "START_ROUND",
			"payload": map[string]any{"round": 2},
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write START_ROUND: %v", err)
	}
	for {
		payload = readUntil(t, conn, "stateUpdate")
		if payload["currentRound"].(float64) == 2 {
			break
		}
	}

	if err := conn.WriteJSON(map[string]any{"type": "buzz", "payload": "team-alpha"}); err != nil {
		t.Fatalf("write buzz: %v", err)
	}
	effect := readUntil(t, conn, "buzzerEffect")
	if effect["teamId"] != "team-alpha" {
		t.Fatalf("expected buzzer effect for team-alpha, got %v", effect)
	}
	payload = readUntil(t, conn, "stateUpdate")
	if payload["buzzerWinner"] != "team-alpha" {
		t.Fatalf("expected winner in snapshot, got %v", payload["buzzerWinner"])
	}
}

func TestWebSocketBroadcastReachesAllClients(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	admin := dialWS(t, server)
	defer admin.Close()
	screen := dialWS(t, server)
	defer screen.Close()

	readUntil(t, admin, "stateUpdate")
	readUntil(t, screen, "stateUpdate")

	if err := admin.WriteJSON(map[string]any{"type": "registerTeam", "payload": "Quiz Wizards"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The passive main-screen connection sees the registration without
	// sending anything.
	for {
		payload := readUntil(t, screen, "stateUpdate")
		teams, ok := payload["teams"].(map[string]any)
		if ok {
			if _, present := teams["quiz-wizards"]; present {
				return
			}
		}
	}
}

func TestWebSocketIgnoresMalformedMessages(t *testing.T) {
	server, quiz := newTestServer(t)
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()
	readUntil(t, conn, "stateUpdate")

	bad := []map[string]any{
		{"type": "adminAction", "payload": map[string]any{"type": "LAUNCH_CONFETTI"}},
		{"type": "adminAction", "payload": map[string]any{"type": "START_ROUND", "payload": map[string]any{"round": 42}}},
		{"type": "mystery", "payload": 17},
		{"type": "registerTeam", "payload": 12},
	}
	for _, msg := range bad {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// A valid command after the garbage still lands, and the garbage left
	// no trace.
	if err := conn.WriteJSON(map[string]any{
		"type":    "adminAction",
		"payload": map[string]any{"type": "START_ROUND", "payload": map[string]any{"round": 1}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		payload := readUntil(t, conn, "stateUpdate")
		if payload["currentRound"].(float64) == 1 {
			break
		}
	}
	if state := quiz.Snapshot(); len(state.Teams) != 0 {
		t.Fatalf("malformed registration created a team: %+v", state.Teams)
	}
}
