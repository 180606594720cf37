// Package session owns the hardware link: discovery, the initialization
// handshake, streaming dispatch and supervised recovery.
package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/marine-iot/vvmgate/ble"
	"github.com/marine-iot/vvmgate/future"
	"github.com/marine-iot/vvmgate/health"
	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/vvm"
	"github.com/marine-iot/vvmgate/vvm/convert"
)

const healthComponent = "vvm"

type Config struct {
	// Target match: either the advertised address or the advertised name.
	Address string
	Name    string

	TableTimeout     time.Duration
	ResponseTimeout  time.Duration
	StreamingTimeout time.Duration
	RetryDelay       time.Duration
}

// Session runs the device loop: Discovering, Connecting/Initializing,
// Streaming, Disconnected, back to Discovering, until Close.
type Session struct {
	alive     *alive.Alive
	conf      Config
	transport ble.Transport
	convert   *convert.Engine
	queue     *future.Queue
	health    *health.State
	log       *logx.Log
	receivers []vvm.DataReceiver

	// dispatch map keyed by notification header, replaced wholesale
	params atomic.Value

	lastSeen atomic_clock.Clock

	mutex     sync.Mutex
	cancel    chan struct{}
	cancelled bool
}

func NewSession(conf Config, transport ble.Transport, conv *convert.Engine,
	healthState *health.State, log *logx.Log, receivers ...vvm.DataReceiver) *Session {
	s := &Session{
		alive:     alive.NewAlive(),
		conf:      conf,
		transport: transport,
		convert:   conv,
		queue:     future.NewQueue(log),
		health:    healthState,
		log:       log,
		receivers: receivers,
		cancel:    make(chan struct{}),
	}
	s.params.Store(map[uint16]*vvm.EngineParameter{})
	return s
}

func (s *Session) Start() {
	if s.alive.Add(1) {
		go s.loop()
	}
}

// Close sets the durable abort flag, then unblocks the current iteration.
func (s *Session) Close() {
	s.alive.Stop()
	s.fireCancel()
	s.alive.Wait()
}

func (s *Session) loop() {
	defer s.alive.Done()

	for s.alive.IsRunning() {
		if err := s.runOnce(); err != nil {
			s.log.Errorf("vvm session: %s", errors.ErrorStack(err))
			s.health.SetDown(healthComponent, err.Error())
		}
		s.rearm()
		if !s.alive.IsRunning() {
			return
		}
		select {
		case <-time.After(s.conf.RetryDelay):
		case <-s.alive.StopChan():
			return
		}
	}
}

// runOnce is one full Discovering→Streaming→Disconnected iteration.
func (s *Session) runOnce() error {
	ctx, stop := s.iterationContext()
	defer stop()

	adv, err := s.discover(ctx)
	if err != nil {
		return errors.Annotate(err, "discover")
	}
	s.log.Infof("vvm found device addr=%s name=%s rssi=%d", adv.Address, adv.Name, adv.RSSI)

	peripheral, err := s.transport.Connect(ctx, adv.Address, func() {
		s.health.SetDown(healthComponent, "device disconnected")
		s.fireCancel()
	})
	if err != nil {
		return errors.Annotate(err, "connect")
	}
	defer peripheral.Close()

	if err := s.initialize(peripheral); err != nil {
		return errors.Annotate(err, "initialize")
	}

	s.health.SetUp(healthComponent)
	s.log.Infof("vvm streaming")

	if s.conf.StreamingTimeout > 0 {
		s.lastSeen.SetNow()
		if s.alive.Add(1) {
			go s.watchdog(s.currentCancel())
		}
	}

	select {
	case <-s.currentCancel():
	case <-s.alive.StopChan():
	}
	s.health.SetDown(healthComponent, "session ended")
	return nil
}

// discover scans until an advertisement matches the configured address or
// name.
func (s *Session) discover(ctx context.Context) (ble.Advertisement, error) {
	return s.transport.Scan(ctx, func(adv ble.Advertisement) bool {
		if s.conf.Address != "" && strings.EqualFold(adv.Address, s.conf.Address) {
			return true
		}
		if s.conf.Name != "" && adv.Name == s.conf.Name {
			return true
		}
		return false
	})
}

// initialize performs the handshake: best-effort device info, notification
// subscriptions, streaming off, parameter table, setup exchanges, streaming
// on. Steps are strictly sequential.
func (s *Session) initialize(p ble.Peripheral) error {
	s.readDeviceInfo(p)

	if err := p.SubscribeAll(s.onNotify); err != nil {
		return errors.Trace(err)
	}
	if err := p.WriteCharacteristic(CharDeviceConfig, cmdStreamingOff); err != nil {
		return errors.Trace(err)
	}

	params, err := s.requestTable(p)
	if err != nil {
		// retryable next session; stream with an empty table for now
		s.log.Errorf("vvm parameter table: %v", err)
		params = nil
	}
	s.setParameters(params)

	s.runSetupExchanges(p)

	return errors.Trace(p.WriteCharacteristic(CharDeviceConfig, cmdStreamingOn))
}

// readDeviceInfo logs the standard descriptive characteristics. Each read
// may fail individually without aborting the handshake.
func (s *Session) readDeviceInfo(p ble.Peripheral) {
	for _, c := range []struct{ name, char string }{
		{"model", CharModelNumber},
		{"name", CharDeviceName},
		{"manufacturer", CharManufacturer},
		{"firmware", CharFirmware},
	} {
		b, err := p.ReadCharacteristic(c.char)
		if err != nil {
			s.log.Debugf("vvm device %s unavailable: %v", c.name, err)
			continue
		}
		s.log.Infof("vvm device %s=%s", c.name, string(b))
	}
}

// requestTable writes the table request and gathers the chunked response,
// each chunk correlated by its sequence byte. All chunks are awaited
// together under one deadline.
func (s *Session) requestTable(p ble.Peripheral) ([]*vvm.EngineParameter, error) {
	futures := make([]*future.Future, tableChunkCount)
	for i := range futures {
		futures[i] = s.queue.Register(chunkKey(CharDeviceConfig, byte(i)))
	}

	if err := p.WriteCharacteristic(CharDeviceConfig, cmdRequestTable); err != nil {
		return nil, errors.Trace(err)
	}

	decoder := vvm.NewConfigDecoder()
	deadline := time.After(s.conf.TableTimeout)
	for i, f := range futures {
		select {
		case <-f.Completed():
			decoder.Add(f.Result().([]byte))
		case <-f.Cancelled():
			return nil, errors.Errorf("chunk %d cancelled", i)
		case <-deadline:
			return nil, errors.Timeoutf("parameter table after %d/%d chunks", i, tableChunkCount)
		case <-s.currentCancel():
			return nil, errors.Errorf("session cancelled during table request")
		}
	}

	params, err := decoder.CombineAndParse()
	return params, errors.Trace(err)
}

// runSetupExchanges sends the post-init configuration writes. Response
// mismatches are diagnostic only.
func (s *Session) runSetupExchanges(p ble.Peripheral) {
	for _, x := range setupExchanges {
		s.queue.Register(CharDeviceNext)
		if err := p.WriteCharacteristic(CharDeviceNext, x.request); err != nil {
			s.log.Errorf("vvm setup write %x: %v", x.request, err)
			continue
		}
		resp := s.queue.WaitFor(CharDeviceNext, s.conf.ResponseTimeout, nil)
		if resp == nil {
			s.log.Debugf("vvm setup %x: no response", x.request)
			continue
		}
		if b, ok := resp.([]byte); !ok || !bytes.Equal(b, x.expected) {
			s.log.Debugf("vvm setup %x: response=%x expected=%x", x.request, resp, x.expected)
		}
	}
}

// setParameters replaces the dispatch map wholesale and fans the new table
// out to every receiver.
func (s *Session) setParameters(params []*vvm.EngineParameter) {
	m := make(map[uint16]*vvm.EngineParameter, len(params))
	enabled := 0
	for _, p := range params {
		if p.Enabled() {
			m[p.NotificationHeader] = p
			enabled++
		}
	}
	s.params.Store(m)
	s.log.Infof("vvm parameter table records=%d enabled=%d", len(params), enabled)
	for _, r := range s.receivers {
		r.UpdateParameters(params)
	}
}

// onNotify handles every inbound notification once subscriptions are active.
func (s *Session) onNotify(char string, payload []byte) {
	s.lastSeen.SetNow()

	if s.queue.Trigger(char, payload) {
		return
	}

	if len(payload) >= 2 {
		m := s.params.Load().(map[uint16]*vvm.EngineParameter)
		header := uint16(payload[0])<<8 | uint16(payload[1])
		if param, ok := m[header]; ok {
			raw := decodeLEUint(payload[2:])
			value := s.convert.Convert(param.Type(), float64(raw))
			s.log.Debugf("vvm data %s raw=%d value=%v", param, raw, value)
			s.dispatch(param, value)
			return
		}
	}

	// unrecognized payload, offer it for per-chunk correlation
	if len(payload) > 0 {
		s.queue.Trigger(chunkKey(char, payload[0]), payload)
	}
}

// dispatch fans one value out without waiting for receivers; a slow receiver
// must not stall notification processing.
func (s *Session) dispatch(param *vvm.EngineParameter, value float64) {
	for _, r := range s.receivers {
		r := r
		go func() {
			if err := r.AcceptData(param, value); err != nil {
				s.log.Errorf("vvm dispatch %s: %v", param, err)
			}
		}()
	}
}

func (s *Session) watchdog(cancel <-chan struct{}) {
	defer s.alive.Done()

	tick := time.NewTicker(s.conf.StreamingTimeout)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if since := atomic_clock.Since(&s.lastSeen); since > s.conf.StreamingTimeout {
				s.log.Errorf("vvm watchdog: no data for %v", since)
				s.health.SetDown(healthComponent, "streaming timeout")
				s.fireCancel()
				return
			}
		case <-cancel:
			return
		case <-s.alive.StopChan():
			return
		}
	}
}

func (s *Session) currentCancel() chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.cancel
}

// fireCancel resolves the current iteration's cancellation signal, once.
func (s *Session) fireCancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.cancelled {
		s.cancelled = true
		close(s.cancel)
	}
}

// rearm installs a fresh cancellation signal so the next iteration is
// independently cancellable.
func (s *Session) rearm() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cancel = make(chan struct{})
	s.cancelled = false
}

// iterationContext cancels when the iteration's cancel signal fires or the
// session is stopped.
func (s *Session) iterationContext() (context.Context, func()) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		select {
		case <-s.currentCancel():
		case <-s.alive.StopChan():
		case <-done:
		}
		stop()
	}()
	return ctx, func() { close(done); stop() }
}

func chunkKey(char string, first byte) string {
	return fmt.Sprintf("%s+%02x", char, first)
}

func decodeLEUint(b []byte) uint64 {
	var v uint64
	for i, x := range b {
		if i >= 8 {
			break
		}
		v |= uint64(x) << (8 * uint(i))
	}
	return v
}
