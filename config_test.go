package perch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationValidate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{
			MongoDBURI:   "mongodb://localhost:27017",
			DatabaseName: "perch_test",
			NumWorkers:   2,
			AuthToken:    "secret",
		}
	}

	t.Run("Valid", func(t *testing.T) {
		conf := valid()
		require.NoError(t, conf.Validate())
		assert.Equal(t, 2*time.Second, conf.MongoDBDialTimeout)
		assert.Equal(t, time.Minute, conf.SocketTimeout)
	})
	t.Run("KeepsExplicitTimeouts", func(t *testing.T) {
		conf := valid()
		conf.MongoDBDialTimeout = 10 * time.Second
		conf.SocketTimeout = 2 * time.Minute
		require.NoError(t, conf.Validate())
		assert.Equal(t, 10*time.Second, conf.MongoDBDialTimeout)
		assert.Equal(t, 2*time.Minute, conf.SocketTimeout)
	})
	t.Run("MissingURI", func(t *testing.T) {
		conf := valid()
		conf.MongoDBURI = ""
		assert.Error(t, conf.Validate())
	})
	t.Run("MissingDatabaseName", func(t *testing.T) {
		conf := valid()
		conf.DatabaseName = ""
		assert.Error(t, conf.Validate())
	})
	t.Run("InvalidWorkers", func(t *testing.T) {
		conf := valid()
		conf.NumWorkers = 0
		assert.Error(t, conf.Validate())
	})
	t.Run("MissingTokenRequiresExplicitOptOut", func(t *testing.T) {
		conf := valid()
		conf.AuthToken = ""
		assert.Error(t, conf.Validate())

		conf.AuthDisabled = true
		assert.NoError(t, conf.Validate())
	})
}

func TestLoadFileConfiguration(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFileConfiguration(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})
	t.Run("InvalidYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		require.NoError(t, os.WriteFile(path, []byte("{invalid: [yaml"), 0644))
		_, err := LoadFileConfiguration(path)
		assert.Error(t, err)
	})
	t.Run("RoundTrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		content := `runtime:
  port: 3500
  bearer_token: super-secret
database:
  uri: mongodb://db.example.net:27017
  name: perch
  dial_timeout_seconds: 5
  socket_timeout_seconds: 90
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		conf, err := LoadFileConfiguration(path)
		require.NoError(t, err)
		assert.Equal(t, 3500, conf.Runtime.Port)
		assert.Equal(t, "super-secret", conf.Runtime.BearerToken)
		assert.False(t, conf.Runtime.AuthDisabled)
		assert.Equal(t, "mongodb://db.example.net:27017", conf.Database.URI)
		assert.Equal(t, "perch", conf.Database.Name)
		assert.Equal(t, 5, conf.Database.DialTimeoutSeconds)
		assert.Equal(t, 90, conf.Database.SocketTimeoutSecs)
	})
	t.Run("UnknownSectionsIgnored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		require.NoError(t, os.WriteFile(path, []byte("archiver:\n  retry_attempts: 3\n"), 0644))

		conf, err := LoadFileConfiguration(path)
		require.NoError(t, err)
		assert.Zero(t, conf.Runtime.Port)
	})
}
