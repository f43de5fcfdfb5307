package terminal

import (
	"io"
	"sync"
	"testing"
	"time"
)

// fakeProc is an in-memory Proc for tests
type fakeProc struct {
	mu       sync.Mutex
	written  []byte
	cols     uint16
	rows     uint16
	output   chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func newFakeProc() *fakeProc {
	return &fakeProc{
		output: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (p *fakeProc) Read(buf []byte) (int, error) {
	select {
	case chunk, ok := <-p.output:
		if !ok {
			return 0, io.EOF
		}
		return copy(buf, chunk), nil
	case <-p.done:
		return 0, io.EOF
	}
}

func (p *fakeProc) Write(data []byte) (int, error) {
	p.mu.Lock()
	p.written = append(p.written, data...)
	p.mu.Unlock()
	return len(data), nil
}

func (p *fakeProc) Resize(cols, rows uint16) error {
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return nil
}

func (p *fakeProc) Terminate() error {
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

func (p *fakeProc) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProc) writtenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// chunkRecorder collects delivered output chunks
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []string
}

func (r *chunkRecorder) TerminalData(id int, data []byte) {
	r.mu.Lock()
	r.chunks = append(r.chunks, string(data))
	r.mu.Unlock()
}

func (r *chunkRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...)
}

// testMux returns a multiplexer spawning fake processes and the list of
// processes spawned so far
func testMux() (*Multiplexer, *[]*fakeProc) {
	var procs []*fakeProc
	var mu sync.Mutex

	m := &Multiplexer{
		start: func(cols, rows uint16) (Proc, error) {
			p := newFakeProc()
			mu.Lock()
			procs = append(procs, p)
			mu.Unlock()
			return p, nil
		},
		cols: 80,
		rows: 30,
	}
	return m, &procs
}

// waitFor polls until the condition holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// TestCreateAssignsIncreasingIds verifies slot ids count up from zero
func TestCreateAssignsIncreasingIds(t *testing.T) {
	m, _ := testMux()
	defer m.Shutdown()

	for want := 0; want < 3; want++ {
		id, err := m.Create("alice")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if id != want {
			t.Errorf("Expected id %d, got %d", want, id)
		}
	}
}

// TestCloseTombstonesSlot verifies a closed slot reads as dead and its id is
// never reassigned
func TestCloseTombstonesSlot(t *testing.T) {
	m, _ := testMux()
	defer m.Shutdown()

	id, err := m.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	m.Close(id)

	if got := m.LiveCount(); got != 0 {
		t.Errorf("Expected 0 live terminals, got %d", got)
	}

	next, err := m.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if next == id {
		t.Error("Closed slot id must not be reassigned")
	}
}

// TestWriteAfterCloseIsNoOp verifies keystrokes to a dead id go nowhere
func TestWriteAfterCloseIsNoOp(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, err := m.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	m.Close(id)
	m.Write(id, []byte("ls\n"))

	if got := (*procs)[0].writtenData(); len(got) != 0 {
		t.Errorf("Expected no writes to closed terminal, got %q", got)
	}
}

// TestListOwnedFiltersByOwner verifies listing only reports the caller's
// live terminals
func TestListOwnedFiltersByOwner(t *testing.T) {
	m, _ := testMux()
	defer m.Shutdown()

	aliceID, _ := m.Create("alice")
	bobID, _ := m.Create("bob")
	closedID, _ := m.Create("alice")
	m.Close(closedID)

	got := m.ListOwned("alice")
	if len(got) != 1 || got[0] != aliceID {
		t.Errorf("Expected [%d], got %v", aliceID, got)
	}

	got = m.ListOwned("bob")
	if len(got) != 1 || got[0] != bobID {
		t.Errorf("Expected [%d], got %v", bobID, got)
	}
}

// TestAttachDeliversOutput verifies subscribers receive output in order
func TestAttachDeliversOutput(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, err := m.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec := &chunkRecorder{}
	m.Attach(id, "alice", rec)

	(*procs)[0].output <- []byte("first")
	(*procs)[0].output <- []byte("second")

	waitFor(t, func() bool { return len(rec.recorded()) == 2 })

	got := rec.recorded()
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("Chunks out of order: %v", got)
	}
}

// TestAttachMulticast verifies every attached subscriber receives every
// chunk
func TestAttachMulticast(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, _ := m.Create("alice")

	a := &chunkRecorder{}
	b := &chunkRecorder{}
	m.Attach(id, "alice", a)
	m.Attach(id, "alice", b)

	(*procs)[0].output <- []byte("hello")

	waitFor(t, func() bool {
		return len(a.recorded()) == 1 && len(b.recorded()) == 1
	})
}

// TestAttachWrongOwnerSilentlyIgnored verifies cross-user attach neither
// errors nor delivers
func TestAttachWrongOwnerSilentlyIgnored(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, _ := m.Create("alice")

	rec := &chunkRecorder{}
	m.Attach(id, "mallory", rec)

	(*procs)[0].output <- []byte("secret")

	// give the pump a moment; nothing should arrive
	time.Sleep(50 * time.Millisecond)
	if got := rec.recorded(); len(got) != 0 {
		t.Errorf("Cross-user subscriber must receive nothing, got %v", got)
	}
}

// TestProcessExitTombstones verifies external death reclaims the slot
func TestProcessExitTombstones(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, _ := m.Create("alice")

	(*procs)[0].Terminate()

	waitFor(t, func() bool { return m.LiveCount() == 0 })

	// dead id reads as dead everywhere
	m.Write(id, []byte("x"))
	m.Resize(id, 100, 40)
	if got := m.ListOwned("alice"); len(got) != 0 {
		t.Errorf("Expected no live terminals, got %v", got)
	}
}

// TestResize verifies geometry reaches the process
func TestResize(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, _ := m.Create("alice")
	m.Resize(id, 120, 40)

	p := (*procs)[0]
	p.mu.Lock()
	cols, rows := p.cols, p.rows
	p.mu.Unlock()

	if cols != 120 || rows != 40 {
		t.Errorf("Expected 120x40, got %dx%d", cols, rows)
	}
}

// TestDetachStopsDelivery verifies a detached subscriber gets no further
// chunks
func TestDetachStopsDelivery(t *testing.T) {
	m, procs := testMux()
	defer m.Shutdown()

	id, _ := m.Create("alice")

	rec := &chunkRecorder{}
	m.Attach(id, "alice", rec)

	(*procs)[0].output <- []byte("before")
	waitFor(t, func() bool { return len(rec.recorded()) == 1 })

	m.Detach(rec)
	(*procs)[0].output <- []byte("after")

	time.Sleep(50 * time.Millisecond)
	if got := rec.recorded(); len(got) != 1 {
		t.Errorf("Expected 1 chunk after detach, got %v", got)
	}
}
