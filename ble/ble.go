// Package ble abstracts the platform Bluetooth Low Energy stack behind small
// transport interfaces so the session logic can run against a scripted mock.
package ble

import "context"

// Advertisement is one scan result.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// NotifyFunc receives a characteristic notification. payload is owned by the
// callee.
type NotifyFunc func(char string, payload []byte)

// Peripheral is an established GATT connection. Characteristic identifiers
// are canonical lowercase 128-bit UUID strings.
type Peripheral interface {
	ReadCharacteristic(char string) ([]byte, error)
	WriteCharacteristic(char string, data []byte) error
	Subscribe(char string, fn func(payload []byte)) error
	SubscribeAll(fn NotifyFunc) error
	Close() error
}

type Transport interface {
	// Scan runs until accept returns true for an advertisement or ctx is
	// cancelled, returning the accepted advertisement.
	Scan(ctx context.Context, accept func(Advertisement) bool) (Advertisement, error)

	// Connect establishes a GATT connection and discovers all services.
	// onDisconnect fires once when the link drops for any reason other
	// than Close.
	Connect(ctx context.Context, addr string, onDisconnect func()) (Peripheral, error)
}
