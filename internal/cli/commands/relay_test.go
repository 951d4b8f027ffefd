package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionSecret(t *testing.T) {
	t.Run("configured value wins", func(t *testing.T) {
		t.Setenv("LEAPFLOW_SESSION_SECRET", "from-env")
		assert.Equal(t, "from-config", sessionSecret("from-config"))
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("LEAPFLOW_SESSION_SECRET", "from-env")
		assert.Equal(t, "from-env", sessionSecret(""))
	})

	t.Run("development fallback", func(t *testing.T) {
		t.Setenv("LEAPFLOW_SESSION_SECRET", "")
		secret := sessionSecret("")
		assert.NotEmpty(t, secret)
		assert.Contains(t, secret, "dev-secret")
	})
}
