package logging

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
)

func TestLogAuditEvent(t *testing.T) {
	data := &sinkData{}
	logger := logr.New(&capturingSink{data: data})

	fields := map[string]string{
		"cluster_name": "demo",
		"scope":        "cluster",
		"generation":   "4",
	}

	LogAuditEvent(logger, EventCAKeyReplaced, fields)

	assert.Equal(t, "Operator audit event", data.msg)

	kvMap := make(map[string]interface{})
	for i := 0; i < len(data.keysAndValues); i += 2 {
		k, ok := data.keysAndValues[i].(string)
		if ok && i+1 < len(data.keysAndValues) {
			kvMap[k] = data.keysAndValues[i+1]
		}
	}

	assert.Equal(t, "true", kvMap["audit"])
	assert.Equal(t, EventCAKeyReplaced, kvMap["event_type"])
	assert.Equal(t, "demo", kvMap["cluster_name"])
	assert.Equal(t, "cluster", kvMap["scope"])
	assert.Equal(t, "4", kvMap["generation"])
}

func TestLogAuditEventOrdersFields(t *testing.T) {
	data := &sinkData{}
	logger := logr.New(&capturingSink{data: data})

	LogAuditEvent(logger, EventInstanceRestarted, map[string]string{
		"pod":   "demo-2",
		"stage": "data",
		"csn":   "x",
	})

	var keys []string
	for i := 4; i < len(data.keysAndValues); i += 2 {
		keys = append(keys, data.keysAndValues[i].(string))
	}
	assert.Equal(t, []string{"csn", "pod", "stage"}, keys)
}

type sinkData struct {
	msg           string
	keysAndValues []interface{}
}

// capturingSink implements logr.LogSink
type capturingSink struct {
	data     *sinkData
	localKVs []interface{}
}

func (s *capturingSink) Init(info logr.RuntimeInfo) {}
func (s *capturingSink) Enabled(level int) bool     { return true }
func (s *capturingSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.data.msg = msg
	// combine local KVs with call KVs
	allKVs := append([]interface{}{}, s.localKVs...)
	allKVs = append(allKVs, keysAndValues...)
	s.data.keysAndValues = allKVs
}
func (s *capturingSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.data.msg = msg
	allKVs := append([]interface{}{}, s.localKVs...)
	allKVs = append(allKVs, keysAndValues...)
	s.data.keysAndValues = allKVs
}
func (s *capturingSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	return &capturingSink{
		data:     s.data,
		localKVs: append(s.localKVs, keysAndValues...),
	}
}
func (s *capturingSink) WithName(name string) logr.LogSink {
	return s
}
