// Package signalk publishes converted telemetry to a SignalK server over a
// reconnecting websocket stream.
package signalk

import (
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/marine-iot/vvmgate/future"
	"github.com/marine-iot/vvmgate/health"
	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/vvm"
	"github.com/marine-iot/vvmgate/vvm/convert"
)

const healthComponent = "signalk"

type Config struct {
	URL      string
	Username string
	Password string

	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration

	// SendUnknown forwards parameters of unrecognized type instead of
	// dropping them.
	SendUnknown bool
}

// Publisher maintains the stream connection and implements
// vvm.DataReceiver. Values produced while disconnected are dropped, not
// queued.
type Publisher struct {
	alive   *alive.Alive
	conf    Config
	convert *convert.Engine
	queue   *future.Queue
	health  *health.State
	log     *logx.Log

	mutex      sync.Mutex
	conn       *websocket.Conn
	token      string
	dropLogged bool
}

func NewPublisher(conf Config, conv *convert.Engine, healthState *health.State, log *logx.Log) *Publisher {
	return &Publisher{
		alive:   alive.NewAlive(),
		conf:    conf,
		convert: conv,
		queue:   future.NewQueue(log),
		health:  healthState,
		log:     log,
	}
}

func (p *Publisher) Start() {
	if p.alive.Add(1) {
		go p.loop()
	}
}

func (p *Publisher) Close() {
	p.alive.Stop()
	p.mutex.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.mutex.Unlock()
	p.alive.Wait()
}

func (p *Publisher) Token() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.token
}

func (p *Publisher) loop() {
	defer p.alive.Done()

	for p.alive.IsRunning() {
		if err := p.runOnce(); err != nil {
			kind := classifyError(err)
			p.health.SetDown(healthComponent, kind+": "+err.Error())
			p.log.Errorf("signalk %s: %v", kind, err)
		}
		select {
		case <-time.After(p.conf.ReconnectInterval):
		case <-p.alive.StopChan():
			return
		}
	}
}

func (p *Publisher) runOnce() error {
	u, err := url.Parse(p.conf.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return errors.NotValidf("signalk url %q", p.conf.URL)
	}

	dialer := websocket.Dialer{HandshakeTimeout: p.conf.ConnectTimeout}
	conn, _, err := dialer.Dial(p.conf.URL, nil)
	if err != nil {
		return errors.Annotate(err, "dial")
	}
	p.setConn(conn)
	defer p.setConn(nil)
	defer conn.Close()

	p.health.SetUp(healthComponent)
	p.log.Infof("signalk connected url=%s", p.conf.URL)

	if p.conf.Username != "" {
		if err := p.sendLogin(); err != nil {
			return errors.Annotate(err, "login")
		}
	}

	for p.alive.IsRunning() {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return errors.Annotate(err, "read")
		}
		if id, ok := msg["requestId"].(string); ok {
			p.queue.Trigger(id, msg)
		}
	}
	return nil
}

// sendLogin is non-blocking with respect to the receive loop; the response
// is routed back by requestId.
func (p *Publisher) sendLogin() error {
	id := uuid.New().String()
	p.queue.RegisterFunc(id, p.onLoginResponse)
	return p.writeJSON(loginMessage{
		RequestID: id,
		Login:     credentials{Username: p.conf.Username, Password: p.conf.Password},
	})
}

func (p *Publisher) onLoginResponse(v interface{}) {
	msg, ok := v.(map[string]interface{})
	if !ok {
		p.log.Errorf("signalk login: malformed response %v", v)
		return
	}
	code, _ := msg["statusCode"].(float64)
	if code != 200 {
		// not fatal to the stream, unauthenticated deltas may still apply
		p.log.Errorf("signalk login rejected: %v", msg)
		return
	}
	token := ""
	if login, ok := msg["login"].(map[string]interface{}); ok {
		token, _ = login["token"].(string)
	}
	p.mutex.Lock()
	p.token = token
	p.mutex.Unlock()
	p.log.Infof("signalk authenticated")
}

// UpdateParameters implements vvm.DataReceiver.
func (p *Publisher) UpdateParameters(params []*vvm.EngineParameter) {
	enabled := 0
	for _, param := range params {
		if param.Enabled() {
			enabled++
		}
	}
	p.log.Infof("signalk parameter table records=%d enabled=%d", len(params), enabled)
}

// AcceptData implements vvm.DataReceiver. Unrecognized types are dropped
// unless configured otherwise. While disconnected the value is dropped and
// only the first drop since the last send is logged.
func (p *Publisher) AcceptData(param *vvm.EngineParameter, value float64) error {
	if !param.Type().Known() && !p.conf.SendUnknown {
		return nil
	}
	delta := NewDelta(Path(param), p.convert.Convert(param.Type(), value))

	p.mutex.Lock()
	if p.conn == nil {
		first := !p.dropLogged
		p.dropLogged = true
		p.mutex.Unlock()
		if first {
			p.log.Errorf("signalk disconnected, dropping %s", delta.Updates[0].Values[0].Path)
		}
		return nil
	}
	err := p.conn.WriteJSON(delta)
	if err == nil {
		p.dropLogged = false
	}
	p.mutex.Unlock()
	return errors.Annotate(err, "signalk send")
}

func (p *Publisher) writeJSON(v interface{}) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.conn == nil {
		return errors.Errorf("signalk not connected")
	}
	return errors.Trace(p.conn.WriteJSON(v))
}

func (p *Publisher) setConn(conn *websocket.Conn) {
	p.mutex.Lock()
	p.conn = conn
	p.mutex.Unlock()
}

// classifyError buckets a connection failure for the health message.
func classifyError(err error) string {
	err = errors.Cause(err)
	if errors.IsNotValid(err) {
		return "invalid address"
	}
	if err == websocket.ErrBadHandshake {
		return "invalid handshake"
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return "timeout"
	}
	return "transport"
}
