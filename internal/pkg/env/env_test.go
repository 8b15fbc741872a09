package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppEnv(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  string
		nodeEnv string
		want    string
	}{
		{name: "default is prod", want: "prod"},
		{name: "app env dev", appEnv: "dev", want: "dev"},
		{name: "node env development", nodeEnv: "development", want: "dev"},
		{name: "app env wins", appEnv: "production", nodeEnv: "development", want: "prod"},
		{name: "test", nodeEnv: "test", want: "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Env = map[string]string{}
			t.Setenv("APP_ENV", tt.appEnv)
			t.Setenv("NODE_ENV", tt.nodeEnv)
			assert.Equal(t, tt.want, AppEnv())
		})
	}
}

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"FLAG_ON":  "yes",
		"FLAG_OFF": "0",
		"NUM":      "42",
		"BAD_NUM":  "x",
		"DUR":      "90s",
	}
	defer func() { Env = nil }()

	assert.True(t, GetEnvBool("FLAG_ON", false))
	assert.False(t, GetEnvBool("FLAG_OFF", true))
	assert.True(t, GetEnvBool("MISSING", true))
	assert.Equal(t, 42, GetEnvInt("NUM", 1))
	assert.Equal(t, 1, GetEnvInt("BAD_NUM", 1))
	assert.Equal(t, 90*time.Second, GetEnvDuration("DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("MISSING", time.Second))
}
