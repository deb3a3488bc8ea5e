package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu     sync.Mutex
	calls  []string
	snap   session.Snapshot
	events chan session.Event
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeController) Start(m domain.Mode) { f.record("start:" + m.String()) }
func (f *fakeController) Stop() { f.record("stop") }
func (f *fakeController) Next() { f.record("next") }
func (f *fakeController) End() { f.record("end") }
func (f *fakeController) Abort() { f.record("abort") }
func (f *fakeController) Invite(u domain.UserID) { f.record("invite:" + string(u)) }
func (f *fakeController) CancelInvite() { f.record("cancelInvite") }
func (f *fakeController) AcceptIncoming(id domain.CallID) { f.record("accept:" + string(id)) }
func (f *fakeController) DeclineIncoming(id domain.CallID) { f.record("decline:" + string(id)) }
func (f *fakeController) ToggleMic() { f.record("mic") }
func (f *fakeController) ToggleCam() { f.record("cam") }
func (f *fakeController) EnterPiP() { f.record("pip:on") }
func (f *fakeController) ExitPiP() { f.record("pip:off") }
func (f *fakeController) SetBackgrounded(b bool) {
	if b {
		f.record("bg:on")
		return
	}
	f.record("bg:off")
}
func (f *fakeController) Snapshot() session.Snapshot { return f.snap }
func (f *fakeController) Subscribe() (<-chan session.Event, func()) { return f.events, func() {} }

func newTestRouter(t *testing.T) (*gin.Engine, *fakeController, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := &fakeController{events: make(chan session.Event, 8)}
	o := orch.New(ctl, app.NewRegistry(), app.SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := SetupRouter(ctx, &config.Config{Mode: "test", Secret: "test-secret"}, o)
	return r, ctl, o
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCommandEndpoints(t *testing.T) {
	r, ctl, _ := newTestRouter(t)

	cases := []struct {
		path, body, want string
	}{
		{"/api/start", `{"mode":"direct"}`, "start:direct"},
		{"/api/stop", "", "stop"},
		{"/api/next", "", "next"},
		{"/api/end", "", "end"},
		{"/api/abort", "", "abort"},
		{"/api/invite", `{"userId":"u-9"}`, "invite:u-9"},
		{"/api/invite/cancel", "", "cancelInvite"},
		{"/api/incoming/call-1/accept", "", "accept:call-1"},
		{"/api/incoming/call-2/decline", "", "decline:call-2"},
		{"/api/mic/toggle", "", "mic"},
		{"/api/cam/toggle", "", "cam"},
		{"/api/pip/enter", "", "pip:on"},
		{"/api/pip/exit", "", "pip:off"},
		{"/api/background", `{"backgrounded":true}`, "bg:on"},
		{"/api/background", `{"backgrounded":false}`, "bg:off"},
	}
	for _, tc := range cases {
		w := do(r, http.MethodPost, tc.path, tc.body)
		require.Equal(t, http.StatusAccepted, w.Code, tc.path)
		require.Equal(t, tc.want, ctl.last(), tc.path)
	}
}

func TestBadRequests(t *testing.T) {
	r, ctl, _ := newTestRouter(t)

	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/start", `{"mode":"roulette"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/start", `not json`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/invite", `{}`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/background", `{}`).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/ws/events?kind=tv", "").Code)
	require.Empty(t, ctl.last())
}

func TestStateEndpointAndCookie(t *testing.T) {
	r, ctl, _ := newTestRouter(t)
	ctl.snap = session.Snapshot{State: session.StateSearching, Mode: domain.ModeRandom}

	w := do(r, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Set-Cookie"), "DuetSessions=")

	var st orch.StateDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "searching", st.State)
	require.Equal(t, "random", st.Mode)
}

func TestEventStream(t *testing.T) {
	r, ctl, o := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/events?kind=pip"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var st orch.StateDTO
	require.NoError(t, json.Unmarshal(data, &st))
	require.Equal(t, "state", st.Type)
	require.Equal(t, 1, o.Registry.Len())

	ctl.events <- session.Event{Kind: session.EventRemoteCamChanged, Enabled: true}
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	var ev orch.EventDTO
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "remoteCamChanged", ev.Type)
	require.True(t, *ev.Enabled)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return o.Registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
