package megad

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
)

const thermostatPage = `<html><body><form action=/sec/>
<select name=m><option value=3 selected>LM</select> DIS <br>
Set: <input name=misc value=25><input type=submit value=Save></form></body></html>`

// fakeController answers GETs from a page table keyed by raw query and
// records every query it receives.
type fakeController struct {
	mu      sync.Mutex
	pages   map[string]string
	queries []string
	srv     *httptest.Server
}

func newFakeController(t *testing.T, pages map[string]string) *fakeController {
	t.Helper()
	f := &fakeController{pages: pages}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		body, ok := f.pages[r.URL.RawQuery]
		f.mu.Unlock()
		if !ok {
			body = "Done"
		}
		_, _ = w.Write(protocol.EncodeCP1251(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) client() *protocol.Client {
	return &protocol.Client{BaseURL: f.srv.URL + "/sec/", HTTP: f.srv.Client()}
}

func (f *fakeController) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testConfig(t *testing.T) model.DeviceConfig {
	t.Helper()
	lines := []string{
		"cf=1&eip=192.168.0.14&pwd=sec",
		"pn=0&pty=0&m=1&emt=Door/door",
		"pn=1&pty=1&m=0&d=0&grp=1&emt=Lamp/light",
		"pn=2&pty=1&m=0&d=0&grp=1&emt=Pump/switch/1",
		"pn=3&pty=1&m=1&d=0&emt=Spot/light",
		"pn=4&pty=3&d=3&m=3&misc=22.5&hst=0.5&af=on&emt=Floor/floor",
		"pn=5&pty=3&d=5",
		"pn=6&pty=4&m=1&d=20&inta=12",
		"pn=7&pty=4&m=1&d=0",
		"pt=6&ext=0&emt=Valve",
		"cf=11&pid=0&pidt=Boiler/boiler/4&pidi=4&pido=1&pidsp=60",
		"cf=11&pid=1&pidi=4&pido=255",
	}
	var records []protocol.Record
	for _, l := range lines {
		records = append(records, protocol.ParseRecord([]byte(l)))
	}
	cfg, err := model.NewDeviceConfig(records)
	require.NoError(t, err)
	return cfg
}

func sunday(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 18, hour, minute, 30, 0, time.Local) }
}

func TestNewClassifiesPorts(t *testing.T) {
	m := New("hall", "192.168.0.14", testConfig(t), nil, Options{})

	snap := m.Snapshot()
	kinds := map[int]ports.Kind{}
	for _, p := range snap.Ports {
		kinds[p.ID] = p.Kind
	}
	assert.Equal(t, map[int]ports.Kind{
		0: ports.KindBinary,
		1: ports.KindRelay,
		2: ports.KindRelay,
		3: ports.KindPWM,
		4: ports.KindOneWire,
		5: ports.KindOneWireBus,
		6: ports.KindMCP,
	}, kinds)

	require.Len(t, snap.PIDs, 1, "pid without output is skipped")
	assert.Equal(t, 0, snap.PIDs[0].ID)
	assert.Equal(t, scraper.UnknownUptime, snap.Uptime)

	mcp := m.GetPort(12, true)
	require.NotNil(t, mcp, "expander resolved by interrupt line")
	assert.Equal(t, 6, mcp.ID())
	require.Len(t, mcp.Extra, 1)
	assert.Equal(t, "Valve", mcp.Extra[0].Name())

	assert.Nil(t, m.GetPort(12, false))
	assert.Equal(t, 6, m.GetPort(6, true).ID())
}

func TestUpdateData(t *testing.T) {
	f := newFakeController(t, map[string]string{
		"cmd=all":               "ON/5;ON;OFF;128;22.5;;MCP;",
		"pt=4":                  thermostatPage,
		"pt=5&cmd=list":         "ff01:21.5;ff02:NA",
		"pt=6&cmd=get":          "ON;OFF;ON;OFF;OFF;OFF;OFF;OFF",
		"cf=0":                  "<html>(fw: 4.62b8)</html>",
		"cf=1":                  "<html>Uptime: 1d 02:03<br>Temp: 34.5<br></html>",
		"cf=11&pid=0":           `<form><input name=pidsp value=61><input name=pidi value=4></form><br>Val: 55.5<br>`,
		"cf=7&stime=02:00:30:7": "Done",
	})
	m := New("hall", "127.0.0.1", testConfig(t), f.client(), Options{Now: sunday(2, 0)})

	require.NoError(t, m.UpdateData(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, "4.62b8", snap.Software)
	assert.Equal(t, 24*60+2*60+3, snap.Uptime)
	assert.Equal(t, 34.5, snap.Temperature)

	states := map[string]ports.State{}
	for _, p := range snap.Ports {
		states[p.Key] = p.State
	}
	assert.Equal(t, ports.Switch{On: true, Count: 5}, states["0"])
	assert.Equal(t, ports.Switch{On: true}, states["1"])
	assert.Equal(t, ports.Switch{On: true}, states["2"], "inverted relay reports OFF when on")
	assert.Equal(t, ports.Level{Value: 128}, states["3"])
	assert.Equal(t, ports.Readings{
		Values:     map[string]ports.Reading{ports.CatTemperature: {Value: 22.5, Valid: true}},
		Thermostat: &ports.Thermostat{Enabled: false, SetPoint: 25},
	}, states["4"])
	assert.Equal(t, ports.Bus{Values: map[string]ports.Reading{
		"ff01": {Value: 21.5, Valid: true},
		"ff02": {},
	}}, states["5"])
	assert.Equal(t, ports.Expander{Values: []int{1, 0, 1, 0, 0, 0, 0, 0}}, states["6"])

	pid := snap.PIDs[0].State
	assert.Equal(t, 61.0, pid.SetPoint)
	assert.Equal(t, ports.Reading{Value: 55.5, Valid: true}, pid.Value)

	assert.Contains(t, f.seen(), "cf=7&stime=02:00:30:7")
	assert.Empty(t, m.MissingSlots())
}

func TestUpdateDataSkipsPortsWithoutSlot(t *testing.T) {
	f := newFakeController(t, map[string]string{
		"cmd=all": "ON;OFF",
		"cf=0":    "(fw: 4.62b8)",
	})
	m := New("hall", "127.0.0.1", testConfig(t), f.client(), Options{Now: sunday(12, 0)})

	require.NoError(t, m.UpdateData(context.Background()))

	assert.Equal(t, []int{2, 3, 4, 5, 6}, m.MissingSlots())
	assert.NotContains(t, f.seen(), "cf=7&stime=12:00:30:7")
	p, _ := m.Port("0")
	assert.Equal(t, ports.Switch{On: true}, p.State)
}

func TestUpdateDataSkippedWhileFlashing(t *testing.T) {
	f := newFakeController(t, nil)
	m := New("hall", "127.0.0.1", testConfig(t), f.client(), Options{})
	m.SetFlashing(true)

	require.NoError(t, m.UpdateData(context.Background()))
	assert.Empty(t, f.seen())

	err := m.SetPort(context.Background(), 1, protocol.On)
	assert.ErrorIs(t, err, ErrFirmwareUpdate)
}

func TestCommands(t *testing.T) {
	f := newFakeController(t, map[string]string{"cmd=9:ON": "busy"})
	m := New("hall", "127.0.0.1", testConfig(t), f.client(), Options{Now: sunday(8, 15)})
	ctx := context.Background()

	require.NoError(t, m.SetPort(ctx, 1, protocol.On))
	require.NoError(t, m.SetExtPort(ctx, 6, 0, protocol.Off))
	require.NoError(t, m.SetGroup(ctx, 1, "TOGGLE"))
	require.NoError(t, m.SetTemperature(ctx, 4, 23.5))
	require.NoError(t, m.SetTemperaturePID(ctx, 0, 65))
	require.NoError(t, m.TurnOnPID(ctx, 0))
	require.NoError(t, m.TurnOffPID(ctx, 0))
	require.NoError(t, m.SetCurrentTime(ctx))

	assert.Equal(t, []string{
		"cmd=1:ON",
		"cmd=6e0:OFF",
		"cmd=g1:TOGGLE",
		"pt=4&misc=23.5",
		"cf=11&pide=2&pid=0&pidsp=65",
		"cf=11&pide=2&pid=0&pidi=4",
		"cf=11&pide=2&pid=0&pidi=255",
		"cf=7&stime=08:15:30:7",
	}, f.seen())

	assert.ErrorIs(t, m.SetPort(ctx, 9, protocol.On), ErrBusy)
	assert.ErrorIs(t, m.TurnOnPID(ctx, 3), ErrUnknownPID)
}

func TestUpdatePort(t *testing.T) {
	m := New("hall", "127.0.0.1", testConfig(t), nil, Options{})

	res, err := m.UpdatePort(1, ports.Params(map[string]string{"v": "1"}))
	require.NoError(t, err)
	assert.True(t, res.Changed)

	_, err = m.UpdatePort(42, ports.Text("ON"))
	assert.ErrorIs(t, err, ErrUnknownPort)

	res, err = m.UpdatePID(0, map[string]string{"pidsp": "58"})
	require.NoError(t, err)
	assert.Equal(t, ports.Ok, res.Outcome)
	assert.Equal(t, 58.0, m.GetPID(0).State().SetPoint)

	assert.True(t, m.SetThermostatSetPoint(4, 24))
	assert.False(t, m.SetThermostatSetPoint(1, 24))
}

func TestGroupStates(t *testing.T) {
	m := New("hall", "127.0.0.1", testConfig(t), nil, Options{})
	_, err := m.UpdatePort(1, ports.Text("ON"))
	require.NoError(t, err)
	_, err = m.UpdatePort(2, ports.Text("ON"))
	require.NoError(t, err)

	// Port 1 is on and turns off. Port 2 is inverted: wire ON means off,
	// so it turns on by sending 0.
	assert.Equal(t, map[int]ports.Payload{
		1: ports.Text(protocol.SwitchOff),
		2: ports.Text(protocol.SwitchOff),
	}, m.GroupStates(1, protocol.SwitchToggle))
	assert.Equal(t, map[int]ports.Payload{
		1: ports.Text(protocol.SwitchOn),
		2: ports.Text(protocol.SwitchOn),
	}, m.GroupStates(1, protocol.SwitchOn))
	assert.Empty(t, m.GroupStates(5, protocol.SwitchToggle))
}

func TestInitI2CBus(t *testing.T) {
	f := newFakeController(t, map[string]string{
		"cmd=scan&pt=7": "htu21d<br>ssd1306<br>bh1750<br>",
	})
	m := New("hall", "127.0.0.1", testConfig(t), f.client(), Options{})

	require.NoError(t, m.InitI2CBus(context.Background()))

	var keys []string
	for _, p := range m.Snapshot().Ports {
		if p.ID == 7 {
			keys = append(keys, p.Key)
		}
	}
	assert.Equal(t, []string{"7_0", "7_2"}, keys)
}
