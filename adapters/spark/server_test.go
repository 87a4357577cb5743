package spark

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/sparkchat/domain/entities"
)

// script drives one fake server connection after the request frame is read
type script func(t *testing.T, conn *websocket.Conn, req Request)

// fakeSpark is a websocket endpoint speaking the chat protocol
type fakeSpark struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []Request
	queries  []url.Values
}

func newFakeSpark(t *testing.T, run script) *fakeSpark {
	t.Helper()
	fake := &fakeSpark{}
	upgrader := websocket.Upgrader{}

	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("failed to read request frame: %v", err)
			return
		}

		fake.mu.Lock()
		fake.requests = append(fake.requests, req)
		fake.queries = append(fake.queries, r.URL.Query())
		fake.mu.Unlock()

		run(t, conn, req)

		// hold the socket until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeSpark) credentials(t *testing.T) Credentials {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)

	creds, err := NewCredentials(Config{
		AppID:     "test-app",
		APIKey:    "test-key",
		APISecret: "test-secret",
		Host:      u.Host,
		Scheme:    "ws",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return creds
}

func (f *fakeSpark) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *fakeSpark) Queries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries...)
}

// sendFrames writes raw JSON frames in order
func sendFrames(frames ...string) script {
	return func(t *testing.T, conn *websocket.Conn, _ Request) {
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				t.Errorf("failed to write frame: %v", err)
				return
			}
		}
	}
}

func frame(status int, content string) string {
	resp := Response{
		Header: ResponseHeader{Status: status, SID: "sid-test"},
		Payload: ResponsePayload{
			Choices: Choices{
				Status: status,
				Text:   []ChoiceText{{Content: content, Role: "assistant"}},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

// recorder is a Listener collecting every event
type recorder struct {
	mu        sync.Mutex
	connects  int
	fragments []string
	completes []string
	snapshots [][]entities.Turn
	errs      []error
	closes    int
	states    []entities.SessionState

	messageCh chan string
}

func newRecorder() *recorder {
	return &recorder{messageCh: make(chan string, 64)}
}

func (r *recorder) OnConnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
}

func (r *recorder) OnMessage(fragment string, _ *Response) {
	r.mu.Lock()
	r.fragments = append(r.fragments, fragment)
	r.mu.Unlock()
	r.messageCh <- fragment
}

func (r *recorder) OnComplete(content string, conversation []entities.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, content)
	r.snapshots = append(r.snapshots, conversation)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recorder) OnStatusChange(state entities.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) Fragments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...)
}

func (r *recorder) Completes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completes...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) States() []entities.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.SessionState(nil), r.states...)
}
