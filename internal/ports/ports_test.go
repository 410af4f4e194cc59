package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

func newPort(t *testing.T, line string) *Port {
	t.Helper()
	conf, err := model.ParsePort(protocol.ParseRecord([]byte(line)))
	require.NoError(t, err)
	kind, supported := Classify(conf)
	require.True(t, supported, "port kind not supported: %s", line)
	return New("test", conf, kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want Kind
	}{
		{"pn=1&pty=0&m=1", KindBinary},
		{"pn=1&pty=0&m=0&misc=on", KindBinary},
		{"pn=1&pty=0&m=3", KindClick},
		{"pn=1&pty=0&m=0", KindCounter},
		{"pn=1&pty=1&m=0", KindRelay},
		{"pn=1&pty=1&m=3", KindRelay},
		{"pn=1&pty=1&m=1", KindPWM},
		{"pn=1&pty=3&d=3", KindOneWire},
		{"pn=1&pty=3&d=1", KindDHT},
		{"pn=1&pty=3&d=5", KindOneWireBus},
		{"pn=1&pty=3&d=4", KindReader},
		{"pn=1&pty=3&d=6&m=1", KindReader},
		{"pn=1&pty=4&m=1&d=9", KindI2CSensor},
		{"pn=1&pty=4&m=1&d=0", KindI2CBus},
		{"pn=1&pty=4&m=1&d=20", KindMCP},
		{"pn=1&pty=4&m=1&d=21", KindPCA},
		{"pn=1&pty=2", KindAnalog},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			conf, err := model.ParsePort(protocol.ParseRecord([]byte(tt.line)))
			require.NoError(t, err)
			kind, supported := Classify(conf)
			assert.True(t, supported)
			assert.Equal(t, tt.want, kind)
		})
	}

	for _, line := range []string{"pn=1&pty=255", "pn=1&pty=1&m=4", "pn=1&pty=3&d=6&m=0", "pn=1&pty=4&m=2", "pn=1&pty=4&m=1&d=4"} {
		conf, err := model.ParsePort(protocol.ParseRecord([]byte(line)))
		require.NoError(t, err)
		_, supported := Classify(conf)
		assert.False(t, supported, line)
	}
}

func TestBinaryInput(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		payload Payload
		want    Switch
	}{
		{"on with count", "pn=1&pty=0&m=1", Text("ON/3"), Switch{On: true, Count: 3}},
		{"off", "pn=1&pty=0&m=1", Text("OFF"), Switch{}},
		{"numeric on", "pn=1&pty=0&m=1", Text("1"), Switch{On: true}},
		{"inverted on", "pn=1&pty=0&m=1&emt=Door/door/1", Text("ON"), Switch{On: false}},
		{"inverted off", "pn=1&pty=0&m=1&emt=Door/door/1", Text("OFF"), Switch{On: true}},
		{"push press", "pn=1&pty=0&m=1", Params(map[string]string{"cnt": "4"}), Switch{On: true, Count: 4}},
		{"push release", "pn=1&pty=0&m=1", Params(map[string]string{"m": "1"}), Switch{On: false}},
		{"push release inverted", "pn=1&pty=0&m=1&emt=x//1", Params(map[string]string{"m": "1"}), Switch{On: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPort(t, tt.line)
			res := p.Update(tt.payload)
			assert.Equal(t, Ok, res.Outcome)
			assert.Equal(t, tt.want, p.State())
			assert.True(t, p.Available())
		})
	}
}

func TestBinaryInputTokens(t *testing.T) {
	p := newPort(t, "pn=1&pty=0&m=1")
	p.Update(Text("ON/2"))

	res := p.Update(Text("busy"))
	assert.Equal(t, Busy, res.Outcome)
	assert.Equal(t, Switch{On: true, Count: 2}, p.State())

	res = p.Update(Text("garbage"))
	assert.Equal(t, Ok, res.Outcome)
	assert.Equal(t, Switch{On: false, Count: 2}, p.State())
}

func TestBinaryInputLongHoldRetainsState(t *testing.T) {
	p := newPort(t, "pn=1&pty=0&m=1")
	p.Update(Text("ON"))

	res := p.Update(Params(map[string]string{"m": "2"}))
	assert.Equal(t, Retained, res.Outcome)
	assert.Equal(t, Switch{On: true}, p.State())
}

func TestClick(t *testing.T) {
	p := newPort(t, "pn=2&pty=0&m=3")

	p.Update(Params(map[string]string{"click": "2"}))
	assert.Equal(t, ClickDouble, p.State())

	p.Update(Params(map[string]string{"m": "2"}))
	assert.Equal(t, ClickLong, p.State())

	res := p.Update(Params(map[string]string{"click": "9"}))
	assert.Equal(t, Retained, res.Outcome)
	assert.Equal(t, ClickLong, p.State())

	p.Update(Text("off"))
	assert.Equal(t, ClickOff, p.State())

	p.Update(Text("single"))
	assert.Equal(t, ClickSingle, p.State())

	res = p.Update(Text("ON/0"))
	assert.Equal(t, Retained, res.Outcome)
	assert.Equal(t, ClickSingle, p.State())
}

func TestCounter(t *testing.T) {
	p := newPort(t, "pn=3&pty=0&m=0")

	p.Update(Text("OFF/17"))
	assert.Equal(t, Counter{Count: 17}, p.State())

	p.Update(Params(map[string]string{"cnt": "18"}))
	assert.Equal(t, Counter{Count: 18}, p.State())

	res := p.Update(Text("ON/x"))
	assert.Equal(t, Invalid, res.Outcome)
	assert.Equal(t, Counter{Count: 18}, p.State())

	res = p.Update(Params(map[string]string{"m": "1"}))
	assert.Equal(t, Retained, res.Outcome)
}

func TestRelay(t *testing.T) {
	p := newPort(t, "pn=7&pty=1&m=0")

	p.Update(Text("ON"))
	assert.Equal(t, Switch{On: true}, p.State())

	p.Update(Text("0"))
	assert.Equal(t, Switch{On: false}, p.State())

	res := p.Update(Text("maybe"))
	assert.Equal(t, Invalid, res.Outcome)

	inverted := newPort(t, "pn=8&pty=1&m=0&emt=Pump/switch/1")
	inverted.Update(Text("OFF"))
	assert.Equal(t, Switch{On: true}, inverted.State())
}

func TestPWMBusyKeepsValue(t *testing.T) {
	p := newPort(t, "pn=12&pty=1&m=1")

	res := p.Update(Text("250"))
	require.Equal(t, Ok, res.Outcome)
	assert.Equal(t, Level{Value: 250}, p.State())

	res = p.Update(Text("busy"))
	assert.Equal(t, Busy, res.Outcome)
	assert.Equal(t, Level{Value: 250}, p.State())

	res = p.Update(Text("300"))
	assert.Equal(t, Invalid, res.Outcome)
	assert.Equal(t, Level{Value: 250}, p.State())

	p.Update(Params(map[string]string{"v": "10"}))
	assert.Equal(t, Level{Value: 10}, p.State())
}

func temp(t *testing.T, p *Port, category string) Reading {
	t.Helper()
	r, isReadings := p.State().(Readings)
	require.True(t, isReadings)
	v, found := r.Get(category)
	require.True(t, found)
	return v
}

func TestSensorReadings(t *testing.T) {
	p := newPort(t, "pn=20&pty=3&d=2")

	res := p.Update(Text("temp:24.5/hum:43"))
	require.Equal(t, Ok, res.Outcome)
	assert.Equal(t, Reading{Value: 24.5, Valid: true}, temp(t, p, CatTemperature))
	assert.Equal(t, Reading{Value: 43, Valid: true}, temp(t, p, CatHumidity))

	p.Update(Text("temp:NA/hum:45"))
	assert.Equal(t, Reading{Value: 24.5, Valid: false}, temp(t, p, CatTemperature))
	assert.Equal(t, Reading{Value: 45, Valid: true}, temp(t, p, CatHumidity))

	p.Update(Text("21/40"))
	assert.Equal(t, Reading{Value: 21, Valid: true}, temp(t, p, CatTemperature))
	assert.Equal(t, Reading{Value: 40, Valid: true}, temp(t, p, CatHumidity))

	p.Update(Text("19.5"))
	assert.Equal(t, Reading{Value: 19.5, Valid: true}, temp(t, p, CatTemperature))
	assert.Equal(t, Reading{Value: 40, Valid: true}, temp(t, p, CatHumidity))
}

func TestSensorSentinels(t *testing.T) {
	tests := []struct {
		payload string
		want    Outcome
	}{
		{"busy", Busy},
		{"OFF", Unconfigured},
		{"NA", Unavailable},
		{"temp:abc", Invalid},
		{"1/2/3", Invalid},
		{"", Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			p := newPort(t, "pn=20&pty=3&d=2")
			p.Update(Text("temp:24/hum:43"))

			res := p.Update(Text(tt.payload))
			assert.Equal(t, tt.want, res.Outcome)
			r := temp(t, p, CatTemperature)
			assert.Equal(t, 24.0, r.Value, "numeric fields never mutate on sentinels")
		})
	}
}

func TestSensorUnavailableMarksPort(t *testing.T) {
	p := newPort(t, "pn=20&pty=3&d=3")
	p.Update(Text("temp:24"))
	require.True(t, p.Available())

	p.Update(Text("NA"))
	assert.False(t, p.Available())
	assert.False(t, temp(t, p, CatTemperature).Valid)

	p.Update(Text("temp:25"))
	assert.True(t, p.Available())
}

func TestI2CSensorLayouts(t *testing.T) {
	p := newPort(t, "pn=21&pty=4&m=1&d=10")
	p.Update(Text("800/22.5/41"))
	assert.Equal(t, 800.0, temp(t, p, CatCO2).Value)
	assert.Equal(t, 22.5, temp(t, p, CatTemperature).Value)
	assert.Equal(t, 41.0, temp(t, p, CatHumidity).Value)

	bme := newPort(t, "pn=22&pty=4&m=1&d=6")
	bme.Update(Text("temp:20/press:1013/hum:50"))
	assert.Equal(t, 1013.0, temp(t, bme, CatPressure).Value)
}

func TestDecodeIsIdempotent(t *testing.T) {
	payloads := map[string]Payload{
		"pn=1&pty=0&m=1":       Text("ON/3"),
		"pn=7&pty=1&m=0":       Text("OFF"),
		"pn=12&pty=1&m=1":      Text("128"),
		"pn=20&pty=3&d=2":      Text("temp:24/hum:40"),
		"pn=21&pty=3&d=5":      Text("ff01:22;ff02:NA"),
		"pn=31&pty=4&m=1&d=20": Text("0;1;0;0;ON;OFF;0;0"),
	}

	for line, payload := range payloads {
		t.Run(line, func(t *testing.T) {
			p := newPort(t, line)
			first := p.Update(payload)
			require.Equal(t, Ok, first.Outcome)
			state := p.State()

			second := p.Update(payload)
			assert.False(t, second.Changed)
			assert.True(t, Equal(state, p.State()))
		})
	}
}

func TestThermostat(t *testing.T) {
	p := newPort(t, "pn=30&pty=3&d=3&m=3&misc=22&af=1")
	require.True(t, p.IsThermostat())

	p.Update(Params(map[string]string{"v": "20.5", "dir": "0"}))
	r := p.State().(Readings)
	require.NotNil(t, r.Thermostat)
	assert.True(t, r.Thermostat.Heating)
	assert.Equal(t, 22.0, r.Thermostat.SetPoint)
	assert.Equal(t, 20.5, r.Values[CatTemperature].Value)

	p.Update(Text("temp:23"))
	r = p.State().(Readings)
	assert.True(t, r.Thermostat.Heating, "full poll never touches thermostat flags")

	p.Update(Params(map[string]string{"status_thermo": "0", "misc": "24.5"}))
	r = p.State().(Readings)
	assert.False(t, r.Thermostat.Enabled)
	assert.Equal(t, 24.5, r.Thermostat.SetPoint)

	plain := newPort(t, "pn=31&pty=3&d=3&m=3")
	assert.False(t, plain.IsThermostat())
}

func TestOneWireBus(t *testing.T) {
	p := newPort(t, "pn=33&pty=3&d=5")

	p.Update(Text("28ff01:21.5;28ff02:NA;"))
	b := p.State().(Bus)
	assert.Equal(t, Reading{Value: 21.5, Valid: true}, b.Values["28ff01"])
	assert.False(t, b.Values["28ff02"].Valid)

	res := p.Update(Text("28ff01"))
	assert.Equal(t, Invalid, res.Outcome)
}

func TestExpander(t *testing.T) {
	p := newPort(t, "pn=31&pty=4&m=1&d=20&inta=12")

	res := p.Update(Params(map[string]string{"ext3": "1"}))
	assert.Equal(t, NotReady, res.Outcome)
	assert.Equal(t, Expander{}, p.State())

	res = p.Update(Text("0;1;0;0;ON;OFF;0;0"))
	require.Equal(t, Ok, res.Outcome)
	assert.Equal(t, []int{0, 1, 0, 0, 1, 0, 0, 0}, p.State().(Expander).Values)

	p.Update(Params(map[string]string{"ext3": "1", "pt": "12"}))
	assert.Equal(t, []int{0, 1, 0, 1, 1, 0, 0, 0}, p.State().(Expander).Values)

	res = p.Update(Params(map[string]string{"ext9": "1"}))
	assert.Equal(t, Invalid, res.Outcome)

	res = p.Update(Text("0;1;0"))
	assert.Equal(t, Invalid, res.Outcome)

	assert.True(t, HasExtKeys(map[string]string{"ext0": "1"}))
	assert.False(t, HasExtKeys(map[string]string{"extra": "1", "m": "0"}))
}

func TestReaderAndAnalog(t *testing.T) {
	reader := newPort(t, "pn=40&pty=3&d=4")
	reader.Update(Text("01a2b3c4d5"))
	assert.Equal(t, Code{Value: "01a2b3c4d5"}, reader.State())

	analog := newPort(t, "pn=41&pty=2")
	analog.Update(Text("512"))
	assert.Equal(t, Level{Value: 512}, analog.State())
	res := analog.Update(Text("busy"))
	assert.Equal(t, Busy, res.Outcome)
}

func TestMomentary(t *testing.T) {
	assert.True(t, newPort(t, "pn=1&pty=0&m=3").Momentary())
	assert.True(t, newPort(t, "pn=1&pty=0&m=0&misc=on").Momentary())
	assert.False(t, newPort(t, "pn=1&pty=0&m=1").Momentary())
	assert.False(t, newPort(t, "pn=1&pty=1&m=0").Momentary())
}

func TestRevertPayloadReleases(t *testing.T) {
	for _, line := range []string{
		"pn=1&pty=0&m=0&misc=on",
		"pn=1&pty=0&m=0&misc=on&emt=Bell/none/1",
		"pn=1&pty=0&m=3",
	} {
		p := newPort(t, line)
		p.Update(Params(map[string]string{"pt": "1", "click": "1"}))
		p.Update(Params(map[string]string{"pt": "1"}))
		require.True(t, Active(p.State()), line)

		p.Update(p.RevertPayload())
		assert.False(t, Active(p.State()), line)
	}
}

func TestPIDUpdate(t *testing.T) {
	conf, err := model.ParsePID(protocol.ParseRecord([]byte("cf=11&pid=0&pidi=30&pido=7&pidsp=60&value=55")))
	require.NoError(t, err)
	p := NewPID("test", conf)
	assert.True(t, p.State().Enabled())

	res := p.Update(map[string]string{"pidsp": "65", "value": "NA", "pidi": ""})
	require.Equal(t, Ok, res.Outcome)
	assert.True(t, res.Changed)
	assert.Equal(t, 65.0, p.State().SetPoint)
	assert.Equal(t, Reading{Value: 55, Valid: false}, p.State().Value)
	assert.False(t, p.State().Enabled())

	res = p.Update(map[string]string{"pidsp": "hot"})
	assert.Equal(t, Invalid, res.Outcome)
	assert.Equal(t, 65.0, p.State().SetPoint)
}
