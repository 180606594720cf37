package vvm

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/juju/errors"
)

// Descriptor wire format, after stripping the per-chunk sequence byte and
// concatenating in sequence order:
//
//	[0]    magic 0x28
//	[1:3]  little-endian length of everything after byte 3
//	[3:5]  table-format marker, not validated
//	[5:]   4-byte records: BE parameter id, BE notification header
const descriptorMagic = 0x28

var (
	ErrNoData          = fmt.Errorf("descriptor: no data")
	ErrBadMagic        = fmt.Errorf("descriptor: bad magic")
	ErrLengthMismatch  = fmt.Errorf("descriptor: length mismatch")
	ErrTruncatedRecord = fmt.Errorf("descriptor: truncated record")
)

type parseState uint8

const (
	parseUnknown parseState = iota
	parseValid
	parseInvalid
)

// ConfigDecoder reassembles the chunked descriptor table. Chunks may arrive
// in any order; each carries its sequence index in its first byte. Add and
// CombineAndParse are decoupled so the caller can retry cheaply while chunks
// trickle in over independent notifications.
type ConfigDecoder struct {
	chunks [][]byte
	state  parseState
	cached []*EngineParameter
}

func NewConfigDecoder() *ConfigDecoder { return &ConfigDecoder{} }

// Add appends chunks to the accumulated set and invalidates any cached
// parse result.
func (d *ConfigDecoder) Add(chunks ...[]byte) {
	d.chunks = append(d.chunks, chunks...)
	d.state = parseUnknown
	d.cached = nil
}

// CombineAndParse sorts the accumulated chunks by sequence byte, strips the
// sequence bytes, concatenates and parses the result. The parsed list is
// cached until the next Add.
func (d *ConfigDecoder) CombineAndParse() ([]*EngineParameter, error) {
	if d.state == parseValid {
		return d.cached, nil
	}
	if len(d.chunks) == 0 {
		d.state = parseUnknown
		return nil, errors.Trace(ErrNoData)
	}

	sorted := make([][]byte, len(d.chunks))
	copy(sorted, d.chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })

	var combined []byte
	for _, c := range sorted {
		combined = append(combined, c[1:]...)
	}

	params, err := d.parse(combined)
	if err != nil {
		d.state = parseInvalid
		return nil, err
	}
	d.state = parseValid
	d.cached = params
	return params, nil
}

func (d *ConfigDecoder) parse(combined []byte) ([]*EngineParameter, error) {
	if len(combined) == 0 || combined[0] != descriptorMagic {
		return nil, errors.Annotatef(ErrBadMagic, "combined=%x", combined)
	}
	if len(combined) < 3 {
		return nil, errors.Annotatef(ErrLengthMismatch, "combined=%x", combined)
	}
	declared := binary.LittleEndian.Uint16(combined[1:3])
	body := combined[3:]
	if int(declared) != len(body) {
		return nil, errors.Annotatef(ErrLengthMismatch, "declared=%d actual=%d", declared, len(body))
	}

	if len(body) < 2 {
		return nil, errors.Annotatef(ErrTruncatedRecord, "body=%x", body)
	}

	// skip the table-format marker
	records := body[2:]
	if len(records)%4 != 0 {
		return nil, errors.Annotatef(ErrTruncatedRecord, "trailing=%d bytes", len(records)%4)
	}
	params := make([]*EngineParameter, 0, len(records)/4)
	for i := 0; i+4 <= len(records); i += 4 {
		params = append(params, &EngineParameter{
			ID:                 binary.BigEndian.Uint16(records[i : i+2]),
			NotificationHeader: binary.BigEndian.Uint16(records[i+2 : i+4]),
		})
	}
	return params, nil
}

// HasAllData reports the decoder's tri-state parse status: (has, known).
// When the status is unknown it attempts one parse, swallowing the error,
// so the first read after new data arrives is not free of side effects.
func (d *ConfigDecoder) HasAllData() (bool, bool) {
	if d.state == parseUnknown {
		_, _ = d.CombineAndParse()
	}
	switch d.state {
	case parseValid:
		return true, true
	case parseInvalid:
		return false, true
	}
	return false, false
}
