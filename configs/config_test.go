package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("EDU_TEST_INT", "")
	t.Setenv("EDU_TEST_BAD_INT", "ten")
	t.Setenv("EDU_TEST_BOOL", "true")
	t.Setenv("EDU_TEST_DURATION", "45m")

	assert.Equal(t, 30, ConfigInt("EDU_TEST_INT", 30))
	assert.Equal(t, 7, ConfigInt("EDU_TEST_BAD_INT", 7))
	assert.True(t, ConfigBool("EDU_TEST_BOOL", false))
	assert.Equal(t, 45*time.Minute, ConfigDuration("EDU_TEST_DURATION", time.Minute))
	assert.Equal(t, "XAF", ConfigDefault("EDU_TEST_MISSING_CURRENCY", "XAF"))
}

func TestIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	assert.True(t, IsProduction())

	t.Setenv("APP_ENV", "development")
	assert.False(t, IsProduction())
}
