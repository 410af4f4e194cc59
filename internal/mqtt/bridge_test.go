package mqtt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakeClient struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]Handler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]Handler{}}
}

func (f *fakeClient) Subscribe(topic string, cb Handler) error {
	f.mu.Lock()
	f.handlers[topic] = cb
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Unsubscribe(topic string) error {
	f.mu.Lock()
	delete(f.handlers, topic)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) PublishWith(topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	f.messages = append(f.messages, published{topic, string(payload), retain})
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) deliver(filter, topic, payload string) {
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	h(nil, &fakeMessage{topic: topic, payload: []byte(payload)})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (q *queryLog) seen() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.queries...)
}

func setupBridge(t *testing.T) (*Bridge, *fakeClient, *controller.Coordinator, *queryLog) {
	t.Helper()
	log := &queryLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.mu.Lock()
		log.queries = append(log.queries, r.URL.RawQuery)
		log.mu.Unlock()
		_, _ = w.Write([]byte("Done"))
	}))
	t.Cleanup(srv.Close)

	var records []protocol.Record
	for _, l := range []string{
		"cf=1&eip=192.168.0.14&pwd=sec",
		"pn=1&pty=1&m=0&d=0&emt=Lamp/light",
		"pn=4&pty=3&d=3&m=3&misc=22.5&af=on&emt=Floor/floor",
		"cf=11&pid=0&pidt=Boiler/boiler/4&pidi=4&pido=1&pidsp=60",
	} {
		records = append(records, protocol.ParseRecord([]byte(l)))
	}
	cfg, err := model.NewDeviceConfig(records)
	require.NoError(t, err)

	client := &protocol.Client{BaseURL: srv.URL + "/sec/", HTTP: srv.Client()}
	c := controller.New(megad.New("hall", "192.168.0.14", cfg, client, megad.Options{}), controller.Options{})
	t.Cleanup(c.Close)

	registry := controller.NewRegistry()
	require.NoError(t, registry.Register(c))

	fake := newFakeClient()
	return NewBridge(fake, "home/megad/", registry), fake, c, log
}

func TestPublish(t *testing.T) {
	b, fake, _, _ := setupBridge(t)

	b.Publish(controller.Event{
		Controller: "hall",
		Available:  true,
		Ports: []megad.PortView{
			{Key: "1", ID: 1, Name: "Lamp", Kind: ports.KindRelay, Available: true, State: ports.Switch{On: true}},
		},
		PIDs: []megad.PIDView{{ID: 0, Name: "Boiler", State: ports.PIDState{SetPoint: 60, Input: 4}}},
	})

	require.Len(t, fake.messages, 3)
	assert.Equal(t, published{"home/megad/hall/availability", "online", true}, fake.messages[0])
	assert.Equal(t, "home/megad/hall/1/state", fake.messages[1].topic)
	assert.Equal(t, "home/megad/hall/pid/0/state", fake.messages[2].topic)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.messages[1].payload), &view))
	assert.Equal(t, "Lamp", view["name"])
	assert.Equal(t, map[string]any{"on": true}, view["state"])
}

func TestWatchPublishesCoordinatorEvents(t *testing.T) {
	b, fake, c, _ := setupBridge(t)
	b.Watch(c)

	_, err := c.UpdatePortState(1, ports.Text("ON"), false)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.messages, 2)
	assert.Equal(t, published{"home/megad/hall/availability", "offline", true}, fake.messages[0])
	assert.Equal(t, "home/megad/hall/1/state", fake.messages[1].topic)
}

func TestListen(t *testing.T) {
	b, fake, c, queries := setupBridge(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.Listen(ctx))
	assert.Len(t, fake.handlers, 2)

	fake.deliver("home/megad/+/+/set", "home/megad/hall/1/set", "1")
	fake.deliver("home/megad/+/+/setpoint", "home/megad/hall/4/setpoint", "23.5")
	fake.deliver("home/megad/+/+/set", "home/megad/cellar/1/set", "1")
	fake.deliver("home/megad/+/+/setpoint", "home/megad/hall/4/setpoint", "warm")

	assert.Equal(t, []string{"cmd=1:1", "pt=4&misc=23.5"}, queries.seen())
	assert.Equal(t, ports.Switch{On: true}, c.Device().GetPort(1, false).State())

	cancel()
	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.handlers) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandleRejectsMalformedTopics(t *testing.T) {
	b, _, _, queries := setupBridge(t)

	for _, topic := range []string{
		"home/megad/hall/set",
		"home/megad/hall/x/set",
		"home/megad/hall/1/toggle",
	} {
		assert.Error(t, b.handle(context.Background(), topic, "1"), topic)
	}
	assert.Empty(t, queries.seen())
}
