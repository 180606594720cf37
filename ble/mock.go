package ble

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/errors"
)

// MockTransport scripts scan and connect results for tests.
type MockTransport struct {
	ScanAdv    Advertisement
	ScanErr    error
	Device     *MockPeripheral
	ConnectErr error

	mutex        sync.Mutex
	scanCount    int
	connectCount int
	onDisconnect func()
}

func (m *MockTransport) Scan(ctx context.Context, accept func(Advertisement) bool) (Advertisement, error) {
	m.mutex.Lock()
	m.scanCount++
	m.mutex.Unlock()
	if m.ScanErr != nil {
		return Advertisement{}, m.ScanErr
	}
	if !accept(m.ScanAdv) {
		<-ctx.Done()
		return Advertisement{}, errors.Trace(ctx.Err())
	}
	return m.ScanAdv, nil
}

func (m *MockTransport) Connect(ctx context.Context, addr string, onDisconnect func()) (Peripheral, error) {
	m.mutex.Lock()
	m.connectCount++
	m.onDisconnect = onDisconnect
	m.mutex.Unlock()
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	return m.Device, nil
}

func (m *MockTransport) ScanCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.scanCount
}

func (m *MockTransport) ConnectCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.connectCount
}

// FireDisconnect simulates the link dropping.
func (m *MockTransport) FireDisconnect() {
	m.mutex.Lock()
	fn := m.onDisconnect
	m.onDisconnect = nil
	m.mutex.Unlock()
	if fn != nil {
		fn()
	}
}

// MockPeripheral is a scripted GATT server. Reads answers
// ReadCharacteristic; OnWrite observes writes and may drive notifications via
// Notify, which is how tests emulate the request/response characteristics.
type MockPeripheral struct {
	Reads   map[string][]byte
	OnWrite func(char string, data []byte) error

	mutex  sync.Mutex
	writes []MockWrite
	subs   map[string][]func([]byte)
	all    []NotifyFunc
	closed bool
}

type MockWrite struct {
	Char string
	Data []byte
}

func (m *MockPeripheral) ReadCharacteristic(char string) ([]byte, error) {
	if b, ok := m.Reads[strings.ToLower(char)]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, errors.NotFoundf("characteristic %s", char)
}

func (m *MockPeripheral) WriteCharacteristic(char string, data []byte) error {
	char = strings.ToLower(char)
	m.mutex.Lock()
	m.writes = append(m.writes, MockWrite{Char: char, Data: append([]byte(nil), data...)})
	fn := m.OnWrite
	m.mutex.Unlock()
	if fn != nil {
		return fn(char, data)
	}
	return nil
}

func (m *MockPeripheral) Subscribe(char string, fn func([]byte)) error {
	char = strings.ToLower(char)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.subs == nil {
		m.subs = make(map[string][]func([]byte))
	}
	m.subs[char] = append(m.subs[char], fn)
	return nil
}

func (m *MockPeripheral) SubscribeAll(fn NotifyFunc) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.all = append(m.all, fn)
	return nil
}

func (m *MockPeripheral) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}

func (m *MockPeripheral) Closed() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.closed
}

// Writes returns a copy of everything written so far.
func (m *MockPeripheral) Writes() []MockWrite {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]MockWrite(nil), m.writes...)
}

// Notify delivers a notification to every subscriber of char, synchronously.
func (m *MockPeripheral) Notify(char string, payload []byte) {
	char = strings.ToLower(char)
	m.mutex.Lock()
	subs := append(([]func([]byte))(nil), m.subs[char]...)
	all := append([]NotifyFunc(nil), m.all...)
	m.mutex.Unlock()
	for _, fn := range subs {
		fn(append([]byte(nil), payload...))
	}
	for _, fn := range all {
		fn(char, append([]byte(nil), payload...))
	}
}
