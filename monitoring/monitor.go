// Package monitoring exposes a running simulation's allocator,
// page-table driver, and MMU/TLB state over HTTP, in the style of the
// teacher's own monitoring.Monitor: a component registry plus a small
// gorilla/mux server, scaled down from a full simulation-control surface
// (pause/continue/tick an engine) to read-only introspection, since this
// module's core has no engine to control (spec §5: synchronous, no
// suspension points).
package monitoring

import (
	"fmt"
	"net"
	"net/http"

	// Registers /debug/pprof/* on http.DefaultServeMux.
	_ "net/http/pprof"

	"os"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/mem"
	"github.com/syifan/goseth"
)

// Monitor is the HTTP introspection server. The zero value is not usable;
// construct with New.
type Monitor struct {
	portNumber int

	mu         sync.Mutex
	components map[string]any

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{components: make(map[string]any)}
}

// WithPortNumber sets the TCP port Serve listens on; zero (the default)
// picks a random free port.
func (m *Monitor) WithPortNumber(port int) *Monitor {
	m.portNumber = port
	return m
}

// RegisterComponent makes component inspectable at /inspect/{name}. Pass
// the allocator, the page-table driver, or the MMU façade.
func (m *Monitor) RegisterComponent(name string, component any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components[name] = component
}

// CreateProgressBar registers a new progress bar visible at /progress.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := NewProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()
	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes bar from the set shown at /progress.
func (m *Monitor) CompleteProgressBar(bar *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	remaining := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != bar {
			remaining = append(remaining, b)
		}
	}
	m.progressBars = remaining
}

// Serve starts the HTTP server in the background and returns its URL. It
// panics if the listener cannot be created — a monitoring server that
// fails to bind is a configuration error, not a recoverable one.
func (m *Monitor) Serve() string {
	r := mux.NewRouter()
	r.HandleFunc("/components", m.listComponents)
	r.HandleFunc("/inspect/{name}", m.inspectComponent)
	r.HandleFunc("/progress", m.listProgress)
	r.HandleFunc("/host/memory", m.hostMemory)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	addr := ":0"
	if m.portNumber > 0 {
		addr = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		panic(fmt.Errorf("monitoring: failed to bind %s: %w", addr, err))
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "monitoring: serving at %s\n", url)

	go func() {
		if err := http.Serve(listener, r); err != nil {
			fmt.Fprintf(os.Stderr, "monitoring: server exited: %v\n", err)
		}
	}()

	return url
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprint(w, "[")
	i := 0
	for name := range m.components {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, "%q", name)
		i++
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) inspectComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.mu.Lock()
	component, ok := m.components[name]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(2)

	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Monitor) listProgress(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	fmt.Fprint(w, "[")
	for i, bar := range m.progressBars {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, `{"id":%q,"name":%q,"total":%d,"finished":%d,"in_progress":%d}`,
			bar.ID, bar.Name, bar.Total, bar.Finished, bar.InProgress)
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) hostMemory(w http.ResponseWriter, _ *http.Request) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, `{"total":%d,"available":%d,"used_percent":%.2f}`,
		stat.Total, stat.Available, stat.UsedPercent)
}
