package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/config"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr: ":0",
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			Issuer:     "quill-test",
			Expiration: time.Hour,
		},
		LongPollTimeout:  50 * time.Millisecond,
		QueueTTL:         time.Minute,
		MaxUploadSizeMiB: 25,
	}
}

func newTestApp() *App {
	return NewApp(testConfig(), zerolog.Nop())
}

func doRegister(t *testing.T, a *App) api.RegisterResponse {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/register", nil)
	req.SetBasicAuth("iago@example.com", "key")

	resp, err := a.fiber.Test(req, 2000)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("register status = %d: %s", resp.StatusCode, body)
	}

	var snapshot api.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snapshot
}

func doPoll(t *testing.T, a *App, snapshot api.RegisterResponse, lastEventID string) (*http.Response, []json.RawMessage) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet,
		"/api/v1/events?queue_id="+snapshot.QueueID+"&last_event_id="+lastEventID, nil)
	req.Header.Set("Authorization", "Bearer "+snapshot.QueueToken)

	resp, err := a.fiber.Test(req, 5000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	return resp, body.Events
}

func TestRegisterIssuesQueueAndSnapshot(t *testing.T) {
	a := newTestApp()
	snapshot := doRegister(t, a)

	if snapshot.QueueID == "" || snapshot.QueueToken == "" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	if snapshot.ServerVersion == "" || snapshot.MaxUploadSizeMiB != 25 {
		t.Errorf("snapshot fields = %q/%d", snapshot.ServerVersion, snapshot.MaxUploadSizeMiB)
	}
	if len(snapshot.Subscriptions) == 0 {
		t.Error("snapshot has no subscriptions")
	}

	claims, err := parseQueueToken(testConfig().JWT, snapshot.QueueToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != snapshot.QueueID || claims.Email != "iago@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRegisterRequiresCredentials(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/register", nil)

	resp, err := a.fiber.Test(req, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSendThenPollDeliversMessage(t *testing.T) {
	a := newTestApp()
	snapshot := doRegister(t, a)

	body, _ := json.Marshal(api.SendMessageRequest{Topic: "lunch", Content: "soup?"})
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("iago@example.com", "key")
	resp, err := a.fiber.Test(req, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("send status = %d: %s", resp.StatusCode, raw)
	}

	_, events := doPoll(t, a, snapshot, "0")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev, err := api.DecodeEvent(events[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msgEv, ok := ev.(*api.MessageEvent)
	if !ok {
		t.Fatalf("event = %T", ev)
	}
	if msgEv.Message.Topic != "lunch" || msgEv.Message.SenderEmail != "iago@example.com" {
		t.Errorf("message = %+v", msgEv.Message)
	}
	if msgEv.EventID() <= snapshot.LastEventID {
		t.Errorf("event id %d not beyond snapshot anchor %d", msgEv.EventID(), snapshot.LastEventID)
	}
}

func TestIdlePollReturnsHeartbeat(t *testing.T) {
	a := newTestApp()
	snapshot := doRegister(t, a)

	_, events := doPoll(t, a, snapshot, "0")
	if len(events) != 1 {
		t.Fatalf("events = %d, want heartbeat", len(events))
	}
	ev, err := api.DecodeEvent(events[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := ev.(*api.HeartbeatEvent); !ok {
		t.Errorf("event = %T, want heartbeat", ev)
	}
}

func TestPollUnknownQueue(t *testing.T) {
	a := newTestApp()
	token, err := newQueueToken(testConfig().JWT, "no-such-queue", "iago@example.com")
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := doPoll(t, a, api.RegisterResponse{QueueID: "no-such-queue", QueueToken: token}, "0")
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.StatusCode)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatal(err)
	}
	if apiErr.Code != "BAD_EVENT_QUEUE_ID" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestPollRejectsForeignToken(t *testing.T) {
	a := newTestApp()
	snapshot := doRegister(t, a)

	forged, err := newQueueToken(config.JWTConfig{Secret: "other-secret", Issuer: "x", Expiration: time.Hour},
		snapshot.QueueID, "iago@example.com")
	if err != nil {
		t.Fatal(err)
	}
	snapshot.QueueToken = forged

	resp, _ := doPoll(t, a, snapshot, "0")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSendMessageValidation(t *testing.T) {
	a := newTestApp()
	for _, body := range []string{`{}`, `{"topic":"x"}`, `{"content":"y"}`, `{"topic":" ","content":" "}`} {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("iago@example.com", "key")
		resp, err := a.fiber.Test(req, 2000)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("send(%s) status = %d, want 400", body, resp.StatusCode)
		}
	}
}
