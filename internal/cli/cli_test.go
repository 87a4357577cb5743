package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
	"github.com/satriahrh/sparkchat/domain/repositories"
)

func setSparkEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SPARK_APP_ID", "env-app")
	t.Setenv("SPARK_API_KEY", "env-key")
	t.Setenv("SPARK_API_SECRET", "env-secret")
}

func TestLoadConfig_Env(t *testing.T) {
	setSparkEnv(t)
	t.Setenv("SPARK_VERSION", "v3.5")
	t.Setenv("SPARK_MAX_TOKENS", "2048")

	config, err := loadConfig(newViper(""))
	require.NoError(t, err)
	assert.Equal(t, "env-app", config.AppID)
	assert.Equal(t, "v3.5", config.Version)
	assert.Equal(t, 2048, config.MaxTokens)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SPARK_API_SECRET", "env-secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_id: file-app
api_key: file-key
api_secret: file-secret
temperature: 0.9
system_prompt: be brief
`), 0o600))

	config, err := loadConfig(newViper(path))
	require.NoError(t, err)
	assert.Equal(t, "file-app", config.AppID)
	assert.Equal(t, "env-secret", config.APISecret, "environment overrides the file")
	assert.Equal(t, 0.9, config.Temperature)
	assert.Equal(t, "be brief", config.SystemPrompt)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SPARK_APP_ID", "")
	t.Setenv("SPARK_API_KEY", "")
	t.Setenv("SPARK_API_SECRET", "")

	_, err := loadConfig(newViper(""))
	assert.Error(t, err)
}

// newSparkServer answers each request with "Hel", "lo", "!"
func newSparkServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"header":{"code":0,"status":1},"payload":{"choices":{"text":[{"content":"Hel","role":"assistant"}]}}}`,
		`{"header":{"code":0,"status":1},"payload":{"choices":{"text":[{"content":"lo","role":"assistant"}]}}}`,
		`{"header":{"code":0,"status":2},"payload":{"choices":{"text":[{"content":"!","role":"assistant"}]}}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req spark.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		for _, frame := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return u.Host
}

func TestAskCommand(t *testing.T) {
	setSparkEnv(t)
	t.Setenv("SPARK_SCHEME", "ws")
	host := newSparkServer(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ask", "say", "hello", "--host", host})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "Hello!\n", out.String())
}

func TestAskCommand_RequiresMessage(t *testing.T) {
	setSparkEnv(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ask"})

	assert.Error(t, cmd.Execute())
}

// scriptedSession replies "ok" to every message
type scriptedSession struct {
	listener spark.Listener

	mu    sync.Mutex
	turns []entities.Turn
}

var _ repositories.StreamingChat = (*scriptedSession)(nil)

func (s *scriptedSession) SendUserMessage(_ context.Context, text string) error {
	if text == "fail" {
		return spark.ErrTransport
	}
	s.listener.OnMessage("ok", &spark.Response{})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		entities.Turn{Role: entities.RoleUser, Content: text},
		entities.Turn{Role: entities.RoleAssistant, Content: "ok"})
	return nil
}

func (s *scriptedSession) SendConversation(context.Context, []entities.Turn) error { return nil }

func (s *scriptedSession) ClearConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

func (s *scriptedSession) Conversation() []entities.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Turn(nil), s.turns...)
}

func (s *scriptedSession) CurrentContent() string { return "" }

func (s *scriptedSession) State() entities.SessionState { return entities.SessionStateInit }

func (s *scriptedSession) Close() error { return nil }

func TestRunChat(t *testing.T) {
	in := strings.NewReader("hi\n/history\nfail\n/clear\n/history\n/exit\nnever sent\n")
	var out bytes.Buffer

	var session *scriptedSession
	err := runChat(context.Background(), in, &out, func(listener spark.Listener) repositories.StreamingChat {
		session = &scriptedSession{listener: listener}
		return session
	})
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "> ok\n")
	assert.Contains(t, output, "[user] hi\n[assistant] ok\n")
	assert.Contains(t, output, "error: "+spark.ErrTransport.Error())
	assert.Contains(t, output, "conversation cleared")
	assert.NotContains(t, output, "never sent")
	assert.Empty(t, session.Conversation())
}
