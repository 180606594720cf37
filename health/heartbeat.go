package health

import (
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/marine-iot/vvmgate/logx"
)

// Heartbeat periodically writes the aggregate health verdict to a file so an
// external supervisor can watch a single path:
//
//	OK <unix-ts>
//	BAD <component> <message> <unix-ts>
type Heartbeat struct {
	alive    *alive.Alive
	state    *State
	path     string
	interval time.Duration
	log      *logx.Log
}

func NewHeartbeat(state *State, path string, interval time.Duration, log *logx.Log) *Heartbeat {
	return &Heartbeat{
		alive:    alive.NewAlive(),
		state:    state,
		path:     path,
		interval: interval,
		log:      log,
	}
}

func (h *Heartbeat) Start() {
	if h.alive.Add(1) {
		go h.loop()
	}
}

func (h *Heartbeat) Close() {
	h.alive.Stop()
	h.alive.Wait()
}

func (h *Heartbeat) loop() {
	defer h.alive.Done()

	tick := time.NewTicker(h.interval)
	defer tick.Stop()
	for {
		if err := h.WriteOnce(); err != nil {
			h.log.Errorf("heartbeat: %v", err)
		}
		select {
		case <-tick.C:
		case <-h.alive.StopChan():
			return
		}
	}
}

func (h *Heartbeat) WriteOnce() error {
	ok, component, message := h.state.Check()
	var line string
	if ok {
		line = fmt.Sprintf("OK %d\n", time.Now().Unix())
	} else {
		line = fmt.Sprintf("BAD %s %s %d\n", component, message, time.Now().Unix())
	}
	err := os.WriteFile(h.path, []byte(line), 0644)
	return errors.Annotatef(err, "heartbeat write path=%s", h.path)
}
