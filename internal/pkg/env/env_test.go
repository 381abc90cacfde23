package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	Env = map[string]string{"FROM_FILE": "file-value"}
	t.Setenv("FROM_OS", "os-value")

	assert.Equal(t, "file-value", GetEnv("FROM_FILE", "default"))
	assert.Equal(t, "os-value", GetEnv("FROM_OS", "default"))
	assert.Equal(t, "default", GetEnv("UNSET_KEY", "default"))
}

func TestGetDuration(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	Env = map[string]string{
		"GOOD_DURATION": "90s",
		"BAD_DURATION":  "ninety seconds",
	}

	assert.Equal(t, 90*time.Second, GetDuration("GOOD_DURATION", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("BAD_DURATION", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("UNSET_DURATION", time.Minute))
}

func TestIsDev(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	Env = map[string]string{"APP_ENV": "dev"}
	assert.True(t, IsDev())

	Env = map[string]string{"APP_ENV": "prod"}
	assert.False(t, IsDev())
}
