// Package health tracks per-component connectivity for the heartbeat file.
package health

import (
	"sort"
	"sync"
)

// State is the shared component→up map. Components also carry their last
// failure message while down.
type State struct {
	mutex sync.Mutex
	up    map[string]bool
	errs  map[string]string
}

func NewState() *State {
	return &State{
		up:   make(map[string]bool),
		errs: make(map[string]string),
	}
}

func (s *State) SetUp(component string) {
	s.mutex.Lock()
	s.up[component] = true
	delete(s.errs, component)
	s.mutex.Unlock()
}

func (s *State) SetDown(component, message string) {
	s.mutex.Lock()
	s.up[component] = false
	s.errs[component] = message
	s.mutex.Unlock()
}

// Check returns (true, "", "") when every registered component is up,
// otherwise the first down component in name order and its message.
func (s *State) Check() (ok bool, component string, message string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	names := make([]string, 0, len(s.up))
	for name := range s.up {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !s.up[name] {
			return false, name, s.errs[name]
		}
	}
	return true, "", ""
}
