package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordAkkarin/DeadCodeBot/internal/format"
	"github.com/LordAkkarin/DeadCodeBot/internal/irc"
	"github.com/LordAkkarin/DeadCodeBot/internal/metrics"
	"github.com/LordAkkarin/DeadCodeBot/internal/secret"
	"github.com/LordAkkarin/DeadCodeBot/internal/verify"
	"github.com/LordAkkarin/DeadCodeBot/internal/webhook/mocks"
)

const (
	testChannel = "#deadcode"
	testSecret  = "test-secret"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	return Config{
		Listen:           "127.0.0.1:0",
		Channel:          testChannel,
		MaxBodySize:      DefaultMaxBodySize,
		GitHub:           GitHubConfig{Enabled: true, Secret: testSecret, Path: DefaultGitHubPath},
		AtlassianConnect: ConnectConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T, cfg Config, sender Sender) (*Server, *secret.FileStore) {
	t.Helper()
	store := secret.NewFileStore(filepath.Join(t.TempDir(), "connect-secret"))
	return New(cfg, sender, store, testLogger()), store
}

func githubRequest(body []byte, kind, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, DefaultGitHubPath, bytes.NewReader(body))
	if kind != "" {
		req.Header.Set(HeaderGitHubEvent, kind)
	}
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGitHubPingEndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	s, _ := newTestServer(t, testConfig(), sender)

	var sent string
	sender.EXPECT().Send(testChannel, gomock.Any()).DoAndReturn(func(_, text string) error {
		sent = text
		return nil
	})

	body := []byte(`{"zen":"test"}`)
	rec := serve(s, githubRequest(body, "ping", verify.Sign(body, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Contains(t, sent, "Received WebHook installation ping")
	assert.Contains(t, sent, "test")
	assert.Equal(t, "[GitHub] Received WebHook installation ping: test", format.Strip(sent))
}

func TestGitHubRejections(t *testing.T) {
	signed := []byte(`{"zen":"test"}`)
	malformed := []byte(`{"zen":`)

	tests := []struct {
		name     string
		body     []byte
		kind     string
		sig      string
		wantCode int
		wantBody string
	}{
		{
			name:     "missing signature",
			body:     signed,
			kind:     "ping",
			wantCode: http.StatusForbidden,
			wantBody: "Access Denied: No Signature",
		},
		{
			name:     "wrong signature",
			body:     signed,
			kind:     "ping",
			sig:      verify.Sign(signed, "other-secret"),
			wantCode: http.StatusForbidden,
			wantBody: "Access Denied: Invalid Signature",
		},
		{
			name:     "unsigned malformed body is unauthorized not malformed",
			body:     malformed,
			kind:     "ping",
			wantCode: http.StatusForbidden,
			wantBody: "Access Denied: No Signature",
		},
		{
			name:     "badly signed malformed body is unauthorized",
			body:     malformed,
			kind:     "ping",
			sig:      verify.Sign(signed, testSecret),
			wantCode: http.StatusForbidden,
			wantBody: "Access Denied: Invalid Signature",
		},
		{
			name:     "signed malformed body",
			body:     malformed,
			kind:     "ping",
			sig:      verify.Sign(malformed, testSecret),
			wantCode: http.StatusBadRequest,
			wantBody: "Error: Invalid data received.",
		},
		{
			name:     "missing event name",
			body:     signed,
			sig:      verify.Sign(signed, testSecret),
			wantCode: http.StatusBadRequest,
			wantBody: "Error: Missing event name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mocks.NewMockSender(ctrl)
			sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
			s, _ := newTestServer(t, testConfig(), sender)

			rec := serve(s, githubRequest(tt.body, tt.kind, tt.sig))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "zen")
		})
	}
}

func TestGitHubUnknownKindIsAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
	s, _ := newTestServer(t, testConfig(), sender)

	body := []byte(`{"action":"created"}`)
	rec := serve(s, githubRequest(body, "star", verify.Sign(body, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGitHubPushPlural(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	s, _ := newTestServer(t, testConfig(), sender)

	var lines []string
	sender.EXPECT().Send(testChannel, gomock.Any()).Times(2).DoAndReturn(func(_, text string) error {
		lines = append(lines, format.Strip(text))
		return nil
	})

	for _, body := range [][]byte{
		[]byte(`{"ref":"refs/heads/main","compare":"https://x/c","repository":{"name":"bot"}}`),
		[]byte(`{"size":3,"ref":"refs/heads/main","compare":"https://x/c","repository":{"name":"bot"}}`),
	} {
		rec := serve(s, githubRequest(body, "push", verify.Sign(body, testSecret)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1 commit has been pushed")
	assert.Contains(t, lines[1], "3 commits have been pushed")
}

func TestGitHubSendFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not connected", err: irc.ErrNotConnected, wantCode: http.StatusServiceUnavailable},
		{name: "write failure", err: errors.New("broken pipe"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mocks.NewMockSender(ctrl)
			sender.EXPECT().Send(testChannel, gomock.Any()).Return(tt.err)
			s, _ := newTestServer(t, testConfig(), sender)

			body := []byte(`{"zen":"test"}`)
			rec := serve(s, githubRequest(body, "ping", verify.Sign(body, testSecret)))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	cfg := testConfig()
	cfg.MaxBodySize = 16
	s, _ := newTestServer(t, cfg, sender)

	body := []byte(`{"zen":"this body is longer than sixteen bytes"}`)
	rec := serve(s, githubRequest(body, "ping", verify.Sign(body, testSecret)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func jiraRequest(path string, body []byte, authorization string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if authorization != "" {
		req.Header.Set(HeaderAuthorization, authorization)
	}
	return req
}

func jiraToken(t *testing.T, key string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "jira:client",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(3 * time.Minute).Unix(),
	}).SignedString([]byte(key))
	require.NoError(t, err)
	return "JWT " + signed
}

const jiraCreated = `{
	"webhookEvent": "jira:issue_created",
	"user": {"displayName": "Ada"},
	"issue": {
		"key": "DC-7",
		"self": "https://example.atlassian.net/rest/api/2/issue/10007",
		"fields": {"summary": "Crash on start"}
	}
}`

func TestJiraMissingAuthorization(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
	s, store := newTestServer(t, testConfig(), sender)
	require.NoError(t, store.PutIfAbsent(context.Background(), "shared"))

	rec := serve(s, jiraRequest(JiraPath, []byte(jiraCreated), ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Access Denied: Missing Authorization", rec.Body.String())
}

func TestJiraEvents(t *testing.T) {
	tests := []struct {
		name      string
		provision string
		body      string
		authKey   string
		wantCode  int
		wantBody  string
		wantSend  bool
	}{
		{
			name:      "valid token",
			provision: "shared",
			body:      jiraCreated,
			authKey:   "shared",
			wantCode:  http.StatusNoContent,
			wantSend:  true,
		},
		{
			name:      "wrong key",
			provision: "shared",
			body:      jiraCreated,
			authKey:   "forged",
			wantCode:  http.StatusBadRequest,
			wantBody:  "Access Denied: Invalid Signature",
		},
		{
			name:     "not provisioned fails closed",
			body:     jiraCreated,
			authKey:  "shared",
			wantCode: http.StatusBadRequest,
			wantBody: "Access Denied: Invalid Signature",
		},
		{
			name:      "signed malformed body",
			provision: "shared",
			body:      `{"webhookEvent":`,
			authKey:   "shared",
			wantCode:  http.StatusBadRequest,
			wantBody:  "Error: Invalid data received.",
		},
		{
			name:      "unknown kind",
			provision: "shared",
			body:      `{"webhookEvent":"jira:worklog_updated"}`,
			authKey:   "shared",
			wantCode:  http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sender := mocks.NewMockSender(ctrl)
			var sent string
			if tt.wantSend {
				sender.EXPECT().Send(testChannel, gomock.Any()).DoAndReturn(func(_, text string) error {
					sent = text
					return nil
				})
			} else {
				sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
			}

			s, store := newTestServer(t, testConfig(), sender)
			if tt.provision != "" {
				require.NoError(t, store.PutIfAbsent(context.Background(), tt.provision))
			}

			rec := serve(s, jiraRequest(JiraPath, []byte(tt.body), jiraToken(t, tt.authKey)))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.wantSend {
				assert.Equal(t,
					`[JIRA] Ada created the issue "Crash on start" (DC-7): https://example.atlassian.net/browse/DC-7`,
					format.Strip(sent))
			}
		})
	}
}

func TestInstallationLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, store := newTestServer(t, testConfig(), mocks.NewMockSender(ctrl))
	ctx := context.Background()

	rec := serve(s, jiraRequest(InstallationPath, []byte(`{"clientKey":"k"}`), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Error: Invalid data received.", rec.Body.String())

	rec = serve(s, jiraRequest(InstallationPath, []byte(`{"sharedSecret":"first","clientKey":"k"}`), ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(s, jiraRequest(InstallationPath, []byte(`{"sharedSecret":"second"}`), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, jiraRequest(InstallationPath, []byte(`not json`), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "provisioned state rejects regardless of payload")

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestInstallationExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, store := newTestServer(t, testConfig(), mocks.NewMockSender(ctrl))
	handler := s.Handler()

	const racers = 16
	codes := make([]int, racers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			body := []byte(`{"sharedSecret":"secret-` + string(rune('a'+i)) + `"}`)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, jiraRequest(InstallationPath, body, ""))
			codes[i] = rec.Code
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, code := range codes {
		switch code {
		case http.StatusNoContent:
			winners++
		case http.StatusBadRequest:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, winners)

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "secret-"))
}

func TestDisabledProviders(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	cfg := testConfig()
	cfg.GitHub.Enabled = false
	cfg.AtlassianConnect.Enabled = false
	s, store := newTestServer(t, cfg, sender)

	body := []byte(`{"zen":"test"}`)
	assert.Equal(t, http.StatusNotFound, serve(s, githubRequest(body, "ping", verify.Sign(body, testSecret))).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, jiraRequest(JiraPath, []byte(jiraCreated), "JWT x")).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, jiraRequest(InstallationPath, []byte(`{"sharedSecret":"x"}`), "")).Code)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists, "disabled installation must not touch the store")
}

func TestNilStoreDisablesConnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(testConfig(), mocks.NewMockSender(ctrl), nil, testLogger())

	rec := serve(s, jiraRequest(InstallationPath, []byte(`{"sharedSecret":"x"}`), ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(testConfig(), mocks.NewMockSender(ctrl), nil, testLogger(),
		WithHealth(func() string { return "disconnected" }, func() bool { return false }))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "disconnected", resp.IRCState)
}

func TestMetricsEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(testChannel, gomock.Any()).Return(nil)

	reg := metrics.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = true
	store := secret.NewFileStore(filepath.Join(t.TempDir(), "connect-secret"))
	s := New(cfg, sender, store, testLogger(), WithMetrics(metrics.New(reg), reg))

	body := []byte(`{"zen":"test"}`)
	require.Equal(t, http.StatusOK, serve(s, githubRequest(body, "ping", verify.Sign(body, testSecret))).Code)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `deadcode_webhooks_total{outcome="relayed",provider="source-host"} 1`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := metrics.NewRegistry()
	s := New(testConfig(), mocks.NewMockSender(ctrl), nil, testLogger(), WithMetrics(metrics.New(reg), reg))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(testConfig(), mocks.NewMockSender(ctrl), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
