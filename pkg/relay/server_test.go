package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestMediaStreamOverWebsocket(t *testing.T) {
	h := newHarness(t, DefaultOptions(), false)
	srv := httptest.NewServer(NewServer(":0", h.relay, h.store).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + MediaStreamPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	b, err := json.Marshal(startMsg("MZ9", "10sf917264"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
	h.waitSettings(t)

	h.agent.in <- frame{typ: websocket.BinaryMessage, data: []byte("hi")}
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), `"streamSid":"MZ9"`)

	b, err = json.Marshal(stopMsg())
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
	require.Eventually(t, func() bool { return h.agent.Closed() }, time.Second, 5*time.Millisecond)
}

func TestCallSnapshotEndpoint(t *testing.T) {
	h := newHarness(t, DefaultOptions(), false)
	s := NewServer(":0", h.relay, h.store)

	st := verify.CallState{
		Stage:        verify.StageExplain,
		Phrase:       testPhrase,
		Verified:     true,
		CardVerified: true,
		PaymentID:    "09ne482130",
		TargetPhone:  "4155550123",
	}
	require.NoError(t, h.store.Set(context.Background(), "MZ1", st))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calls/MZ1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	require.Equal(t, "explain", view["stage"])
	require.Equal(t, true, view["card_verified"])
	require.Equal(t, false, view["phone_verified"])
	require.NotContains(t, string(body), "4155550123")
	require.NotContains(t, string(body), testPhrase)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calls/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calls/MZ1", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness(t, DefaultOptions(), false)
	s := NewServer("127.0.0.1:0", h.relay, h.store)
	ran := make(chan struct{})
	s.AddTask("probe", func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-ran
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
