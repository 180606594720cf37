package signalk

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marine-iot/vvmgate/health"
	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/vvm"
	"github.com/marine-iot/vvmgate/vvm/convert"
)

func TestPathMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   uint16
		want string
	}{
		{0x0000, "propulsion.port.revolutions"},
		{0x0100, "propulsion.starboard.revolutions"},
		{0x0200, "propulsion.2.revolutions"},
		{0x0001, "propulsion.port.temperature"},
		{0x0102, "propulsion.starboard.alternatorVoltage"},
		{0x0007, "propulsion.port.runTime"},
		{0x0108, "propulsion.starboard.fuel.rate"},
		{0x000b, "propulsion.port.oilPressure"},
		{0x0003, "propulsion.port.UNKNOWN_3"},
	}
	for _, c := range cases {
		p := &vvm.EngineParameter{ID: c.id, NotificationHeader: 1}
		assert.Equal(t, c.want, Path(p), "id=%04x", c.id)
	}
}

// testServer accepts one websocket client, forwards every inbound JSON
// message and answers login requests.
type testServer struct {
	*httptest.Server
	inbound chan map[string]interface{}
	token   string
}

func newTestServer(t testing.TB) *testServer {
	ts := &testServer{
		inbound: make(chan map[string]interface{}, 16),
		token:   "test-token",
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if _, ok := msg["login"]; ok {
				_ = conn.WriteJSON(map[string]interface{}{
					"requestId":  msg["requestId"],
					"state":      "COMPLETED",
					"statusCode": 200,
					"login":      map[string]interface{}{"token": ts.token},
				})
			}
			ts.inbound <- msg
		}
	}))
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) next(t testing.TB) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-ts.inbound:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server message")
		return nil
	}
}

func testPublisher(t testing.TB, conf Config) *Publisher {
	log := logx.NewTest(t, logx.LDebug)
	if conf.ConnectTimeout == 0 {
		conf.ConnectTimeout = time.Second
	}
	if conf.ReconnectInterval == 0 {
		conf.ReconnectInterval = 10 * time.Millisecond
	}
	return NewPublisher(conf, convert.NewEngine(nil, log), health.NewState(), log)
}

func waitConnected(t testing.TB, st *health.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _, _ := st.Check(); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("publisher did not connect")
}

func TestPublisherDelta(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()

	p := testPublisher(t, Config{URL: srv.wsURL()})
	p.Start()
	defer p.Close()
	waitConnected(t, p.health)

	param := &vvm.EngineParameter{ID: 0x0100, NotificationHeader: 0x0170}
	require.NoError(t, p.AcceptData(param, 60))

	msg := srv.next(t)
	assert.Equal(t, "vessels.self", msg["context"])
	assert.NotEmpty(t, msg["requestId"])
	updates := msg["updates"].([]interface{})
	require.Len(t, updates, 1)
	values := updates[0].(map[string]interface{})["values"].([]interface{})
	require.Len(t, values, 1)
	v := values[0].(map[string]interface{})
	assert.Equal(t, "propulsion.starboard.revolutions", v["path"])
	assert.Equal(t, 1.0, v["value"])
}

func TestPublisherLogin(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()

	p := testPublisher(t, Config{URL: srv.wsURL(), Username: "skipper", Password: "hunter2"})
	p.Start()
	defer p.Close()
	waitConnected(t, p.health)

	msg := srv.next(t)
	login := msg["login"].(map[string]interface{})
	assert.Equal(t, "skipper", login["username"])
	assert.Equal(t, "hunter2", login["password"])

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && p.Token() == "" {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "test-token", p.Token())
}

func TestPublisherDropsUnknownType(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()

	p := testPublisher(t, Config{URL: srv.wsURL()})
	p.Start()
	defer p.Close()
	waitConnected(t, p.health)

	unknown := &vvm.EngineParameter{ID: 0x0003, NotificationHeader: 1}
	require.NoError(t, p.AcceptData(unknown, 42))

	known := &vvm.EngineParameter{ID: 0x0000, NotificationHeader: 0x0100}
	require.NoError(t, p.AcceptData(known, 60))

	// only the known parameter arrives
	msg := srv.next(t)
	values := msg["updates"].([]interface{})[0].(map[string]interface{})["values"].([]interface{})
	assert.Equal(t, "propulsion.port.revolutions", values[0].(map[string]interface{})["path"])
}

func TestPublisherDropsWhileDisconnected(t *testing.T) {
	t.Parallel()

	p := testPublisher(t, Config{URL: "ws://127.0.0.1:1"})
	param := &vvm.EngineParameter{ID: 0x0000, NotificationHeader: 0x0100}
	assert.NoError(t, p.AcceptData(param, 60))
	assert.NoError(t, p.AcceptData(param, 61))
}

func TestPublisherInvalidAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invalid address", classifyError(testPublisher(t, Config{URL: "not a url"}).runOnce()))
}

func TestPublisherReconnects(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()

	st := health.NewState()
	log := logx.NewTest(t, logx.LDebug)
	p := NewPublisher(Config{
		URL:               srv.wsURL(),
		ConnectTimeout:    time.Second,
		ReconnectInterval: 10 * time.Millisecond,
	}, convert.NewEngine(nil, log), st, log)
	p.Start()
	defer p.Close()
	waitConnected(t, st)

	// server drops the link, the publisher must come back
	srv.CloseClientConnections()
	param := &vvm.EngineParameter{ID: 0x0000, NotificationHeader: 0x0100}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = p.AcceptData(param, 60)
		select {
		case <-srv.inbound:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("publisher did not reconnect")
}
