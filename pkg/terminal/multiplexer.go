// Package terminal owns the slot table of interactive shell processes and
// bridges their I/O to realtime subscribers.
//
// The table only grows. A slot index is assigned once; when its process
// exits or is closed the entry becomes a tombstone and the index is never
// reassigned, so a stale reference to a closed terminal permanently reads
// as dead instead of aliasing someone else's shell.
package terminal

import (
	"io"
	"sync"

	"arcane/pkg/config"
	"arcane/pkg/logger"
)

// Proc is a running interactive process with a pseudo-terminal interface
type Proc interface {
	io.ReadWriter
	Resize(cols, rows uint16) error
	Terminate() error
	Wait() error
}

// StartFunc spawns a new interactive process at the given geometry
type StartFunc func(cols, rows uint16) (Proc, error)

// Subscriber receives output chunks from terminals it is attached to
type Subscriber interface {
	TerminalData(id int, data []byte)
}

// tombstoneID marks a reclaimed slot
const tombstoneID = -1

type slot struct {
	id    int // tombstoneID once reclaimed
	owner string
	proc  Proc
	subs  map[Subscriber]struct{}
}

func (s *slot) live() bool { return s.id != tombstoneID }

// Multiplexer owns the terminal slot table
type Multiplexer struct {
	mu    sync.Mutex
	slots []*slot
	start StartFunc
	cols  uint16
	rows  uint16
}

// New creates a multiplexer spawning the configured shell
func New(cfg config.TerminalConfig) *Multiplexer {
	shell := cfg.Shell
	if shell == "" {
		shell = "bash"
	}
	return &Multiplexer{
		start: func(cols, rows uint16) (Proc, error) {
			return startShell(shell, cols, rows)
		},
		cols: uint16(cfg.Cols),
		rows: uint16(cfg.Rows),
	}
}

// Create spawns a new terminal owned by the given user and returns its slot
// id. Spawn failure registers no slot.
func (m *Multiplexer) Create(owner string) (int, error) {
	proc, err := m.start(m.cols, m.rows)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	id := len(m.slots)
	m.slots = append(m.slots, &slot{
		id:    id,
		owner: owner,
		proc:  proc,
		subs:  make(map[Subscriber]struct{}),
	})
	m.mu.Unlock()

	logger.Get().InfoWith("terminal spawned", "id", id, "owner", owner)

	go m.pump(id, proc)
	go m.watch(id, proc)

	return id, nil
}

// ListOwned returns the ids of all live slots owned by the given user
func (m *Multiplexer) ListOwned(owner string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := []int{}
	for _, s := range m.slots {
		if s.live() && s.owner == owner {
			found = append(found, s.id)
		}
	}
	return found
}

// Attach subscribes sub to a terminal's output. Unknown ids, tombstones,
// and terminals owned by someone else are silently ignored so the call
// leaks nothing about other users' terminals. Multiple subscribers may
// attach to the same terminal; every one receives every chunk.
func (m *Multiplexer) Attach(id int, owner string, sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slotFor(id)
	if s == nil || s.owner != owner {
		return
	}
	s.subs[sub] = struct{}{}
}

// Detach removes sub from every slot it is attached to
func (m *Multiplexer) Detach(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.live() {
			delete(s.subs, sub)
		}
	}
}

// Write writes keystroke data verbatim to a live terminal's input.
// Tombstoned or unknown ids are ignored.
func (m *Multiplexer) Write(id int, data []byte) {
	m.mu.Lock()
	s := m.slotFor(id)
	if s == nil {
		m.mu.Unlock()
		return
	}
	proc := s.proc
	m.mu.Unlock()

	if _, err := proc.Write(data); err != nil {
		logger.Get().DebugWith("terminal write failed", "id", id, "error", err)
	}
}

// Resize changes a live terminal's geometry; dead ids are ignored
func (m *Multiplexer) Resize(id int, cols, rows uint16) {
	m.mu.Lock()
	s := m.slotFor(id)
	if s == nil {
		m.mu.Unlock()
		return
	}
	proc := s.proc
	m.mu.Unlock()

	if err := proc.Resize(cols, rows); err != nil {
		logger.Get().DebugWith("terminal resize failed", "id", id, "error", err)
	}
}

// Close tombstones a live slot and then requests process termination. The
// tombstone lands first so concurrent messages against the same id stop
// acting on it immediately.
func (m *Multiplexer) Close(id int) {
	m.mu.Lock()
	s := m.slotFor(id)
	if s == nil {
		m.mu.Unlock()
		return
	}
	proc := s.proc
	m.slots[id] = &slot{id: tombstoneID}
	m.mu.Unlock()

	logger.Get().InfoWith("terminal closed", "id", id)
	if err := proc.Terminate(); err != nil {
		logger.Get().DebugWith("terminal terminate failed", "id", id, "error", err)
	}
}

// LiveCount returns the number of live slots
func (m *Multiplexer) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.slots {
		if s.live() {
			n++
		}
	}
	return n
}

// Shutdown closes every live terminal
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	n := len(m.slots)
	m.mu.Unlock()

	for id := 0; id < n; id++ {
		m.Close(id)
	}
}

// slotFor returns the live slot for an id, or nil. Callers hold the mutex.
func (m *Multiplexer) slotFor(id int) *slot {
	if id < 0 || id >= len(m.slots) {
		return nil
	}
	s := m.slots[id]
	if !s.live() {
		return nil
	}
	return s
}

// pump forwards process output to every attached subscriber, in the order
// the process produced it
func (m *Multiplexer) pump(id int, proc Proc) {
	buf := make([]byte, 32*1024)
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			m.mu.Lock()
			var subs []Subscriber
			if s := m.slotFor(id); s != nil {
				subs = make([]Subscriber, 0, len(s.subs))
				for sub := range s.subs {
					subs = append(subs, sub)
				}
			}
			m.mu.Unlock()

			for _, sub := range subs {
				sub.TerminalData(id, chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// watch tombstones the slot when the process exits, whether by external
// death or explicit close
func (m *Multiplexer) watch(id int, proc Proc) {
	_ = proc.Wait()

	m.mu.Lock()
	if s := m.slots[id]; s.live() {
		m.slots[id] = &slot{id: tombstoneID}
		logger.Get().InfoWith("terminal exited", "id", id)
	}
	m.mu.Unlock()
}
