package ble

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/errors"
	"tinygo.org/x/bluetooth"

	"github.com/marine-iot/vvmgate/logx"
)

const readBufferSize = 512

// TinyGoTransport drives the host adapter through tinygo.org/x/bluetooth
// (BlueZ D-Bus backend on Linux).
type TinyGoTransport struct {
	adapter *bluetooth.Adapter
	log     *logx.Log

	enableOnce sync.Once
	enableErr  error

	mutex        sync.Mutex
	seen         map[string]bluetooth.Address
	onDisconnect map[string]func()
}

func NewTinyGoTransport(log *logx.Log) *TinyGoTransport {
	return &TinyGoTransport{
		adapter:      bluetooth.DefaultAdapter,
		log:          log,
		seen:         make(map[string]bluetooth.Address),
		onDisconnect: make(map[string]func()),
	}
}

func (t *TinyGoTransport) enable() error {
	t.enableOnce.Do(func() {
		t.enableErr = t.adapter.Enable()
		if t.enableErr == nil {
			t.adapter.SetConnectHandler(t.connectHandler)
		}
	})
	return errors.Annotate(t.enableErr, "ble enable")
}

func (t *TinyGoTransport) connectHandler(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	addr := normalizeAddr(device.Address.String())
	t.mutex.Lock()
	fn := t.onDisconnect[addr]
	delete(t.onDisconnect, addr)
	t.mutex.Unlock()
	if fn != nil {
		t.log.Debugf("ble disconnect addr=%s", addr)
		fn()
	}
}

func (t *TinyGoTransport) Scan(ctx context.Context, accept func(Advertisement) bool) (Advertisement, error) {
	if err := t.enable(); err != nil {
		return Advertisement{}, err
	}

	var (
		mutex sync.Mutex
		found *Advertisement
	)
	scanDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = t.adapter.StopScan()
		case <-scanDone:
		}
	}()

	err := t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		adv := Advertisement{
			Address: normalizeAddr(r.Address.String()),
			Name:    r.LocalName(),
			RSSI:    r.RSSI,
		}
		t.mutex.Lock()
		t.seen[adv.Address] = r.Address
		t.mutex.Unlock()
		if !accept(adv) {
			return
		}
		mutex.Lock()
		if found == nil {
			f := adv
			found = &f
		}
		mutex.Unlock()
		_ = a.StopScan()
	})
	close(scanDone)
	if err != nil {
		return Advertisement{}, errors.Annotate(err, "ble scan")
	}

	mutex.Lock()
	defer mutex.Unlock()
	if found == nil {
		if ctx.Err() != nil {
			return Advertisement{}, errors.Trace(ctx.Err())
		}
		return Advertisement{}, errors.Errorf("ble scan stopped without match")
	}
	return *found, nil
}

func (t *TinyGoTransport) Connect(ctx context.Context, addr string, onDisconnect func()) (Peripheral, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}
	addr = normalizeAddr(addr)

	baddr, err := t.resolveAddr(addr)
	if err != nil {
		return nil, err
	}

	device, err := t.adapter.Connect(baddr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, errors.Annotatef(err, "ble connect addr=%s", addr)
	}
	if ctx.Err() != nil {
		_ = device.Disconnect()
		return nil, errors.Trace(ctx.Err())
	}

	chars, err := discoverCharacteristics(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, errors.Annotatef(err, "ble discover addr=%s", addr)
	}

	t.mutex.Lock()
	t.onDisconnect[addr] = onDisconnect
	t.mutex.Unlock()

	return &tinyGoPeripheral{
		transport: t,
		device:    device,
		addr:      addr,
		chars:     chars,
		log:       t.log,
	}, nil
}

func (t *TinyGoTransport) resolveAddr(addr string) (bluetooth.Address, error) {
	t.mutex.Lock()
	baddr, ok := t.seen[addr]
	t.mutex.Unlock()
	if ok {
		return baddr, nil
	}
	mac, err := bluetooth.ParseMAC(addr)
	if err != nil {
		return bluetooth.Address{}, errors.NotValidf("ble address %q", addr)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func discoverCharacteristics(device bluetooth.Device) (map[string]bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	chars := make(map[string]bluetooth.DeviceCharacteristic)
	for _, svc := range services {
		cs, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, c := range cs {
			chars[normalizeAddr(c.UUID().String())] = c
		}
	}
	return chars, nil
}

type tinyGoPeripheral struct {
	transport *TinyGoTransport
	device    bluetooth.Device
	addr      string
	chars     map[string]bluetooth.DeviceCharacteristic
	log       *logx.Log
}

func (p *tinyGoPeripheral) char(uuid string) (bluetooth.DeviceCharacteristic, error) {
	c, ok := p.chars[normalizeAddr(uuid)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, errors.NotFoundf("characteristic %s", uuid)
	}
	return c, nil
}

func (p *tinyGoPeripheral) ReadCharacteristic(uuid string) ([]byte, error) {
	c, err := p.char(uuid)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, errors.Annotatef(err, "ble read char=%s", uuid)
	}
	return buf[:n], nil
}

func (p *tinyGoPeripheral) WriteCharacteristic(uuid string, data []byte) error {
	c, err := p.char(uuid)
	if err != nil {
		return err
	}
	if _, err := c.WriteWithoutResponse(data); err != nil {
		return errors.Annotatef(err, "ble write char=%s data=%x", uuid, data)
	}
	return nil
}

func (p *tinyGoPeripheral) Subscribe(uuid string, fn func([]byte)) error {
	c, err := p.char(uuid)
	if err != nil {
		return err
	}
	err = c.EnableNotifications(func(buf []byte) {
		fn(append([]byte(nil), buf...))
	})
	return errors.Annotatef(err, "ble subscribe char=%s", uuid)
}

func (p *tinyGoPeripheral) SubscribeAll(fn NotifyFunc) error {
	subscribed := 0
	for uuid, c := range p.chars {
		uuid := uuid
		err := c.EnableNotifications(func(buf []byte) {
			fn(uuid, append([]byte(nil), buf...))
		})
		if err != nil {
			// characteristics without the notify property are expected
			p.log.Debugf("ble subscribe char=%s: %v", uuid, err)
			continue
		}
		subscribed++
	}
	if subscribed == 0 {
		return errors.Errorf("ble subscribe-all: no notifying characteristics")
	}
	return nil
}

func (p *tinyGoPeripheral) Close() error {
	p.transport.mutex.Lock()
	delete(p.transport.onDisconnect, p.addr)
	p.transport.mutex.Unlock()
	return errors.Annotatef(p.device.Disconnect(), "ble close addr=%s", p.addr)
}

func normalizeAddr(s string) string { return strings.ToLower(s) }
