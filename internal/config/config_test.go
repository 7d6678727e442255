package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 250*time.Millisecond, cfg.RollerBackoffBase)
	assert.Equal(t, 2.0, cfg.RollerBackoffFactor)
	assert.Equal(t, 10, cfg.RollerMaxAttempts)
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)

	err := fs.Parse([]string{
		"--operation-timeout=90s",
		"--roller-max-attempts=3",
		"--restarts-per-minute=6",
		"--leader-elect",
	})
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 3, cfg.RollerMaxAttempts)
	assert.Equal(t, 6, cfg.RestartsPerMinute)
	assert.True(t, cfg.EnableLeaderElection)
	assert.Equal(t, ":8081", cfg.ProbeAddr)
}

func TestApplyEnvOverridesFlags(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envFrom(map[string]string{
		"STREAM_OPERATION_TIMEOUT_MS":   "1500",
		"STREAM_ROLLER_BACKOFF_BASE_MS": "100",
		"STREAM_ROLLER_BACKOFF_FACTOR":  "1.5",
		"STREAM_WORKER_POOL_SIZE":       "8",
		"POD_NAMESPACE":                 "streams",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.RollerBackoffBase)
	assert.Equal(t, 1.5, cfg.RollerBackoffFactor)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, "streams", cfg.OperatorNamespace)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"STREAM_OPERATION_TIMEOUT_MS":  "soon",
		"STREAM_ROLLER_BACKOFF_FACTOR": "x2",
		"STREAM_ROLLER_MAX_ATTEMPTS":   "ten",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envFrom(map[string]string{key: value}))
			require.Error(t, err)
			assert.True(t, operatorerrors.IsConfiguration(err))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Operator)
	}{
		{name: "zero timeout", mutate: func(o *Operator) { o.OperationTimeout = 0 }},
		{name: "zero backoff", mutate: func(o *Operator) { o.RollerBackoffBase = 0 }},
		{name: "shrinking backoff", mutate: func(o *Operator) { o.RollerBackoffFactor = 0.5 }},
		{name: "no attempts", mutate: func(o *Operator) { o.RollerMaxAttempts = 0 }},
		{name: "negative throttle", mutate: func(o *Operator) { o.RestartsPerMinute = -1 }},
		{name: "empty pool", mutate: func(o *Operator) { o.WorkerPoolSize = 0 }},
		{name: "no reconcilers", mutate: func(o *Operator) { o.MaxConcurrentReconciles = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, operatorerrors.IsConfiguration(err))
		})
	}
}
