package session

import "github.com/marine-iot/vvmgate/helpers"

// Vendor GATT characteristics. Config carries the streaming switch and the
// parameter table exchange; Next carries the post-init configuration
// exchange; Startup notifies once when the device boots.
const (
	CharDeviceConfig  = "00000001-0000-1000-8000-ec55f9f5b963"
	CharDeviceNext    = "00000111-0000-1000-8000-ec55f9f5b963"
	CharDeviceStartup = "00000302-0000-1000-8000-ec55f9f5b963"
)

// Standard descriptive characteristics, read best-effort after connect.
const (
	CharDeviceName   = "00002a00-0000-1000-8000-00805f9b34fb"
	CharModelNumber  = "00002a24-0000-1000-8000-00805f9b34fb"
	CharFirmware     = "00002a26-0000-1000-8000-00805f9b34fb"
	CharManufacturer = "00002a29-0000-1000-8000-00805f9b34fb"
)

// tableChunkCount is how many notification chunks carry the parameter table.
const tableChunkCount = 10

var (
	cmdStreamingOff = helpers.MustHex("0d00")
	cmdStreamingOn  = helpers.MustHex("0d01")
	cmdRequestTable = helpers.MustHex("28000301")
)

// Post-init configuration exchange. Responses are diagnostic only; a
// mismatch is logged, never fatal.
var setupExchanges = []struct {
	request  []byte
	expected []byte
}{
	{helpers.MustHex("102700"), helpers.MustHex("00102701010001")},
	{helpers.MustHex("ca0f00"), helpers.MustHex("00ca0f01010000")},
	{helpers.MustHex("c80f00"), helpers.MustHex("00c80f01040000000000")},
}
