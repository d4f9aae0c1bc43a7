package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-sensor/internal/history"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sched"
	"github.com/sweeney/button-sensor/internal/status"
)

type failingSource struct{}

func (failingSource) Recent(context.Context, int) ([]history.Record, error) {
	return nil, errors.New("disk on fire")
}

func newTestServer(t *testing.T, events EventSource) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickMs:      1,
		DebounceMs:  20,
		LongMs:      800,
		DoubleGapMs: 300,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, "boot-1", cfg)
	srv := New(":0", tr, events)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update([]status.Button{
		{Name: "key1", Line: 17, State: logic.StatePressed, Counts: logic.EventCounts{Short: 5, Double: 2}},
	}, []sched.TaskStats{{Name: "scan", Period: 5, Runs: 9}}, 45)
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &sj))

	assert.Equal(t, "boot-1", sj.Status.BootID)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	require.Len(t, sj.Status.Buttons, 1)
	assert.Equal(t, "PRESSED", sj.Status.Buttons[0].State)
	assert.Equal(t, 5, sj.Status.Counts.Short)
	assert.Equal(t, 2, sj.Status.Counts.Double)
	require.Len(t, sj.Status.Tasks, 1)
	assert.Equal(t, uint64(9), sj.Status.Tasks[0].Runs)
	assert.Equal(t, int64(800), sj.Status.Config.LongMs)
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	_, body := get(t, ts.URL+"/index.json")

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &sj))
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update([]status.Button{{Name: "doorbell", Line: 4, State: logic.StateLongPressed}}, nil, 1)

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), path)
		assert.Contains(t, string(body), "doorbell", path)
		assert.Contains(t, string(body), "LONG_PRESSED", path)
	}
}

func TestHTMLBeforeFirstScan(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/")
	assert.Contains(t, string(body), "waiting for first scan")
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, _ := get(t, ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestButtonEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update([]status.Button{
		{Name: "key1", Line: 17},
		{Name: "key2", Line: 27, State: logic.StatePressed, Counts: logic.EventCounts{Long: 4}},
	}, nil, 1)

	resp, body := get(t, ts.URL+"/buttons/key2.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var bj status.ButtonJSON
	require.NoError(t, json.Unmarshal(body, &bj))
	assert.Equal(t, 1, bj.Index)
	assert.Equal(t, 27, bj.Line)
	assert.Equal(t, 4, bj.Counts.Long)

	resp, _ = get(t, ts.URL+"/buttons/missing.json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsEndpoint(t *testing.T) {
	store, err := history.Open(":memory:", 0, "boot-1")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	ts0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, k := range []logic.Kind{logic.KindShort, logic.KindDouble, logic.KindLong} {
		require.NoError(t, store.Append(ctx, ts0.Add(time.Duration(i)*time.Second), logic.Event{Kind: k, Button: i}, "key"))
	}

	ts, _ := newTestServer(t, store)

	resp, body := get(t, ts.URL+"/events.json?limit=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ej EventsJSON
	require.NoError(t, json.Unmarshal(body, &ej))
	require.Len(t, ej.Events, 2)
	assert.Equal(t, "LONG_PRESS", ej.Events[0].Event)
	assert.Equal(t, 2, ej.Events[0].Index)
	assert.Equal(t, "2026-01-01T12:00:02Z", ej.Events[0].Timestamp)
	assert.Equal(t, "DOUBLE_PRESS", ej.Events[1].Event)

	_, body = get(t, ts.URL+"/events.json")
	require.NoError(t, json.Unmarshal(body, &ej))
	assert.Len(t, ej.Events, 3)
}

func TestEventsEndpointBadLimit(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for _, q := range []string{"0", "-3", "abc"} {
		resp, _ := get(t, ts.URL+"/events.json?limit="+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestEventsEndpointWithoutHistory(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/events.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"events":[]}`, string(body))
}

func TestEventsEndpointHistoryError(t *testing.T) {
	ts, _ := newTestServer(t, failingSource{})

	resp, _ := get(t, ts.URL+"/events.json")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/index.json")
	var before status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &before))
	assert.Empty(t, before.Status.Buttons)
	assert.False(t, before.Status.MQTT.Connected)

	tr.Update([]status.Button{{Name: "key1", State: logic.StateConfirming}}, nil, 3)
	tr.SetMQTTConnected(true)

	_, body = get(t, ts.URL+"/index.json")
	var after status.StatusJSON
	require.NoError(t, json.Unmarshal(body, &after))
	require.Len(t, after.Status.Buttons, 1)
	assert.Equal(t, "CONFIRMING", after.Status.Buttons[0].State)
	assert.True(t, after.Status.MQTT.Connected)
}
