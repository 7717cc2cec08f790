package main

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var settings Settings
		_, err := env.UnmarshalFromEnviron(&settings)
		if err == nil {
			t.Skip("MONGODB_URI is set in the environment")
		}

		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

		_, err = env.UnmarshalFromEnviron(&settings)
		require.NoError(t, err)

		assert.Equal(t, 8000, settings.Port)
		assert.Equal(t, "/livesync", settings.BasePath)
		assert.Equal(t, "office", settings.MongoDBDatabase)
		assert.Equal(t, 30*time.Second, settings.RefreshInterval)
		assert.Equal(t, 500*time.Millisecond, settings.MinCommitInterval)
		assert.Nil(t, settings.Origins())
	})

	t.Run("origins", func(t *testing.T) {
		settings := Settings{AllowedOrigins: "https://a.example,https://b.example"}

		assert.Equal(t, []string{"https://a.example", "https://b.example"}, settings.Origins())
	})
}
