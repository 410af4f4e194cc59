package controller

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

type fakeController struct {
	mu      sync.Mutex
	pages   map[string]string
	failing bool
	queries []string
	srv     *httptest.Server
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	f := &fakeController{pages: map[string]string{
		"cmd=all":      "OFF;OFF;ON;0;22.5;;MCP;",
		"pt=6&cmd=get": "OFF;OFF;OFF;OFF;OFF;OFF;OFF;OFF",
		"cf=0":         "(fw: 4.62b8)",
		"cf=1":         "Uptime: 0d 01:00<br>Temp: 30<br>",
		"cmd=9:1":      "busy",
	}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		failing := f.failing
		body, ok := f.pages[r.URL.RawQuery]
		f.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !ok {
			body = "Done"
		}
		_, _ = w.Write(protocol.EncodeCP1251(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeController) reset() {
	f.mu.Lock()
	f.queries = nil
	f.mu.Unlock()
}

func (f *fakeController) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testDevice(t *testing.T, f *fakeController, host string) *megad.MegaD {
	t.Helper()
	lines := []string{
		"cf=1&eip=192.168.0.14&pwd=sec",
		"pn=0&pty=0&m=3&emt=Button",
		"pn=1&pty=1&m=0&d=0&grp=1&emt=Lamp/light",
		"pn=2&pty=1&m=0&d=0&grp=1&emt=Pump/switch/1",
		"pn=3&pty=1&m=1&d=0&emt=Spot/light",
		"pn=4&pty=3&d=3&m=3&misc=22.5&hst=0.5&af=on&emt=Floor/floor",
		"pn=5&pty=0&m=0&misc=on&emt=Bell",
		"pn=6&pty=4&m=1&d=20&inta=12",
		"pt=6&ext=0&emt=Valve",
		"cf=11&pid=0&pidt=Boiler/boiler/4&pidi=4&pido=1&pidsp=60",
	}
	var records []protocol.Record
	for _, l := range lines {
		records = append(records, protocol.ParseRecord([]byte(l)))
	}
	cfg, err := model.NewDeviceConfig(records)
	require.NoError(t, err)

	client := &protocol.Client{BaseURL: f.srv.URL + "/sec/", HTTP: f.srv.Client()}
	now := func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.Local) }
	return megad.New("hall", host, cfg, client, megad.Options{Now: now})
}

// recorder collects coordinator events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Send(title, message string) error {
	n.mu.Lock()
	n.titles = append(n.titles, title)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}
