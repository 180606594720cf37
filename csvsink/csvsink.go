// Package csvsink appends telemetry snapshots to a CSV file. Values are
// debounced: each AcceptData stores the latest value per column and arms a
// flush timer, so one row captures everything seen within the interval.
package csvsink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/vvm"
)

type Config struct {
	Path          string
	FlushInterval time.Duration
}

type Sink struct {
	conf Config
	log  *logx.Log

	mutex       sync.Mutex
	columns     []string
	index       map[string]int
	row         []string
	armed       bool
	wroteHeader bool
	file        *os.File
	writer      *csv.Writer
	closed      bool
}

func NewSink(conf Config, log *logx.Log) *Sink {
	return &Sink{conf: conf, log: log}
}

func columnName(p *vvm.EngineParameter) string {
	return fmt.Sprintf("%d_%s", p.EngineID(), p.Type())
}

// UpdateParameters implements vvm.DataReceiver: the enabled parameter set
// fixes the column layout, timestamp first.
func (s *Sink) UpdateParameters(params []*vvm.EngineParameter) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.columns = []string{"timestamp"}
	s.index = make(map[string]int)
	for _, p := range params {
		if !p.Enabled() {
			continue
		}
		name := columnName(p)
		s.index[name] = len(s.columns)
		s.columns = append(s.columns, name)
	}
	s.row = make([]string, len(s.columns))
	s.wroteHeader = false
}

// AcceptData implements vvm.DataReceiver. Parameters outside the current
// column set are ignored.
func (s *Sink) AcceptData(param *vvm.EngineParameter, value float64) error {
	s.mutex.Lock()
	i, ok := s.index[columnName(param)]
	if !ok || s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.row[i] = strconv.FormatFloat(value, 'f', -1, 64)
	arm := !s.armed
	s.armed = true
	s.mutex.Unlock()

	if arm {
		time.AfterFunc(s.conf.FlushInterval, func() {
			if err := s.Flush(); err != nil {
				s.log.Errorf("csv flush: %v", err)
			}
		})
	}
	return nil
}

// Flush writes one row with the latest stored values.
func (s *Sink) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.flushLocked()
}

func (s *Sink) flushLocked() error {
	s.armed = false
	if s.closed || len(s.columns) == 0 {
		return nil
	}
	if s.file == nil {
		f, err := os.OpenFile(s.conf.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Annotatef(err, "csv open path=%s", s.conf.Path)
		}
		s.file = f
		s.writer = csv.NewWriter(f)
	}
	if !s.wroteHeader {
		if err := s.writer.Write(s.columns); err != nil {
			return errors.Trace(err)
		}
		s.wroteHeader = true
	}
	s.row[0] = time.Now().UTC().Format(time.RFC3339)
	if err := s.writer.Write(s.row); err != nil {
		return errors.Trace(err)
	}
	s.writer.Flush()
	return errors.Trace(s.writer.Error())
}

// Close flushes any pending row and closes the file.
func (s *Sink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var err error
	if s.armed {
		err = s.flushLocked()
	}
	s.closed = true
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	return errors.Trace(err)
}
