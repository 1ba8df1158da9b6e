package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	logger := GetLogger()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(nil)
	logger.SetLogLevel(INFO)

	logger.Debug("hidden", nil)
	logger.Info("draft saved", map[string]interface{}{"path": "2024-06-09/kim/draft/submission.json"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "draft saved", entry["message"])
	assert.Equal(t, "2024-06-09/kim/draft/submission.json", entry["path"])
	assert.Contains(t, entry["caller"], "utils_test.go")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARNING, ParseLogLevel("WARN"))
	assert.Equal(t, ERROR, ParseLogLevel(" error "))
	assert.Equal(t, INFO, ParseLogLevel("chatty"))
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("hits")
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, m.GetCounterValue("hits"))
	assert.EqualValues(t, 0, m.GetCounterValue("missing"))

	m.SetGauge("sessions", 3)
	m.IncGauge("sessions")
	m.DecGauge("sessions")
	m.DecGauge("fresh")
	assert.EqualValues(t, 3, m.GetGauge("sessions"))
	assert.EqualValues(t, -1, m.GetGauge("fresh"))

	m.RecordHistogram("latency", 5)
	m.RecordHistogram("latency", 1)
	m.RecordHistogram("latency", 9)
	snap := m.GetMetrics()
	hist := snap["histograms"].(map[string]map[string]int64)["latency"]
	assert.Equal(t, map[string]int64{"count": 3, "sum": 15, "min": 1, "max": 9}, hist)
}

func TestAPIMetrics(t *testing.T) {
	am := NewAPIMetricsWith(NewMetricsCollector())

	am.RecordAPIRequest("/api/session", "GET", 200, 3*time.Millisecond)
	am.RecordAPIRequest("/api/session", "GET", 404, time.Millisecond)
	am.RecordRender(4, 1, 10*time.Millisecond)
	am.RecordStoreOp("local", "put", time.Millisecond, errors.New("disk full"))

	c := am.Collector()
	assert.EqualValues(t, 2, c.GetCounterValue("api_requests_total"))
	assert.EqualValues(t, 1, c.GetCounterValue("api_responses_2xx"))
	assert.EqualValues(t, 1, c.GetCounterValue("api_responses_4xx"))
	assert.EqualValues(t, 1, c.GetCounterValue("render_placeholders_total"))
	assert.EqualValues(t, 4, c.GetCounterValue("render_materials_total"))
	assert.EqualValues(t, 1, c.GetCounterValue("store_put_errors"))
}
