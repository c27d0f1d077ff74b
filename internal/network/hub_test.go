package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
	"github.com/inocsim/server/internal/platform/metrics"
)

func newTestEngine(t *testing.T, hosts int) (*engine.Engine, *events.EventLog) {
	t.Helper()
	el := events.NewEventLog(nil)
	opts := engine.DefaultOptions()
	opts.Params.IncidenceRate = 0
	opts.Source = random.Fixed(0.5)
	eng, err := engine.NewEngine(opts, el, logger.Discard())
	require.NoError(t, err)
	_, err = eng.Seed(hosts)
	require.NoError(t, err)
	return eng, el
}

func startHub(t *testing.T, eng *engine.Engine) (*Hub, *httptest.Server, *metrics.Collector) {
	t.Helper()
	c := metrics.NewCollector()
	hub := NewHub(eng, Options{MaxClients: 2}, logger.Discard(), c)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, srv, c
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func floatPtr(v float64) *float64 { return &v }

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewClientReceivesState(t *testing.T) {
	eng, _ := newTestEngine(t, 3)
	_, srv, _ := startHub(t, eng)

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeState, msg.Type)
	require.NotNil(t, msg.State)
	assert.Len(t, msg.State.Hosts, 3)
}

func TestSetParamIsAppliedAndAcknowledged(t *testing.T) {
	eng, _ := newTestEngine(t, 1)
	_, srv, c := startHub(t, eng)

	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Command{Type: CmdSetParam, Name: "incidence_rate", Value: floatPtr(0.3)}))
	ack := readMessage(t, conn)
	assert.Equal(t, MsgTypeAck, ack.Type)
	assert.Equal(t, CmdSetParam, ack.Ack)
	assert.Equal(t, 0.3, eng.Params().IncidenceRate)

	time.Sleep(2 * editCooldown)
	require.NoError(t, conn.WriteJSON(Command{Type: CmdSetParam, Name: "prob_acute", Value: floatPtr(3)}))
	nack := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, nack.Type)
	assert.Contains(t, nack.Error, "prob_acute")
	assert.Equal(t, params.Default().ProbAcute, eng.Params().ProbAcute)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&c.WSMessagesIn), int64(2))
}

func TestUnknownCommandAndGetState(t *testing.T) {
	eng, _ := newTestEngine(t, 2)
	_, srv, _ := startHub(t, eng)

	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Command{Type: "EXPLODE"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)

	require.NoError(t, conn.WriteJSON(Command{Type: CmdGetState}))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeState, msg.Type)
	assert.Len(t, msg.State.Hosts, 2)
}

func TestTickBroadcastsStateOnDayBoundary(t *testing.T) {
	eng, _ := newTestEngine(t, 1)
	hub, srv, _ := startHub(t, eng)

	conn := dial(t, srv)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	runner := engine.NewRunner(eng, logger.Discard(), 0).WithMetrics(metrics.NewCollector())
	runner.OnTick(hub.OnTick())

	_, err := runner.Step(0.5) // no boundary, no broadcast
	require.NoError(t, err)
	_, err = runner.Step(0.5)
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeState, msg.Type)
	assert.Equal(t, uint32(1), msg.State.Day)
}

func TestMaxClientsRejectsExtraObservers(t *testing.T) {
	eng, _ := newTestEngine(t, 1)
	hub, srv, _ := startHub(t, eng)

	dial(t, srv)
	dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEditWithoutValueIsRejected(t *testing.T) {
	eng, _ := newTestEngine(t, 1)
	_, srv, _ := startHub(t, eng)

	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SET_PARAM","name":"incidence_rate"}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, msg.Error, "value missing")
	assert.Equal(t, 0.0, eng.Params().IncidenceRate)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SET_SPEED"}`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, msg.Error, "value missing")
	assert.Equal(t, 1.0, eng.Speed())

	require.NoError(t, conn.WriteJSON(Command{Type: CmdSetSpeed, Value: floatPtr(0)}))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.NotContains(t, msg.Error, "value missing")
}

func TestStoppedHubRefusesAndReleasesClients(t *testing.T) {
	eng, _ := newTestEngine(t, 1)
	hub := NewHub(eng, Options{}, logger.Discard(), metrics.NewCollector())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	conn := dial(t, srv)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	// The hub closed the send queue, so the connection ends.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	left := make(chan struct{})
	go func() {
		hub.leave(&Client{hub: hub})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave blocked after the hub stopped")
	}
	assert.False(t, hub.join(&Client{hub: hub}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
