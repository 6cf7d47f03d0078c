package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cfg Config) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWithCore(core, cfg)
	t.Cleanup(func() {
		configMu.Lock()
		base = nil
		config = Config{}
		configMu.Unlock()
		loggersMu.Lock()
		loggers = make(map[Category]*Logger)
		loggersMu.Unlock()
	})
	return logs
}

func TestNoopBeforeInitialize(t *testing.T) {
	l := Get(CategoryRouting)
	assert.NotPanics(t, func() {
		l.Info("hello %s", "world")
		Routing("nothing happens")
		Audit().Fallback("a", "b", errors.New("x"))
	})
	assert.False(t, IsCategoryEnabled(CategoryRouting))
}

func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t, Config{Level: "debug"})

	for _, cat := range AllCategories {
		Get(cat).Info("message for %s", cat)
	}

	entries := logs.All()
	require.Len(t, entries, len(AllCategories))
	for i, cat := range AllCategories {
		assert.Equal(t, string(cat), entries[i].LoggerName)
		assert.Equal(t, "message for "+string(cat), entries[i].Message)
	}
}

func TestCategoryFilter(t *testing.T) {
	logs := observe(t, Config{Categories: map[string]bool{"tools": false, "routing": true}})

	Tools("hidden")
	ToolsDebug("hidden")
	Routing("shown")
	Store("shown by default")

	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"shown", "shown by default"}, msgs)
}

func TestLevels(t *testing.T) {
	logs := observe(t, Config{})

	l := Get(CategoryPerception)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, Config{})

	Get(CategorySession).With("conversation_id", "c1").Info("turn stored")

	entries := logs.FilterField(zapcore.Field{Key: "conversation_id", Type: zapcore.StringType, String: "c1"}).All()
	assert.Len(t, entries, 1)
}

func TestAuditEvents(t *testing.T) {
	logs := observe(t, Config{})

	Audit().WithRequest("tr_1").BackendCall("openrouter-default", "m", 10*time.Millisecond, nil)
	Audit().BackendCall("gemini-tools", "m", time.Millisecond, errors.New("boom"))

	entries := logs.FilterLoggerName("audit").All()
	require.Len(t, entries, 2)
	assert.Equal(t, string(AuditBackendCall), entries[0].Message)
	assert.Equal(t, "tr_1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, string(AuditBackendError), entries[1].Message)
}

func TestInitializeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lhihi.log")
	t.Cleanup(func() {
		configMu.Lock()
		base = nil
		configMu.Unlock()
	})

	require.NoError(t, Initialize(Config{Level: "info", Format: "json", File: path}))
	Routing("written to disk")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to disk")
}

func TestInitializeRejectsBadConfig(t *testing.T) {
	assert.Error(t, Initialize(Config{Level: "loud"}))
	assert.Error(t, Initialize(Config{Format: "xml"}))
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, Config{})

	timer := StartTimer(CategoryAPI, "slow call")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	require.Len(t, logs.All(), 1)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}
