package operations

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceTestFlags() []string {
	return []string{"--workers", "2", "--dbUri", "mongodb://localhost:27017", "--dbName", "perch_test"}
}

func TestBuildConfiguration(t *testing.T) {
	flags := mergeFlags(baseFlags(), dbFlags(), serviceFlags())

	t.Run("FromFlags", func(t *testing.T) {
		args := append(serviceTestFlags(), "--token", "secret", "--port", "8080")
		c := newTestContext(t, args, flags)

		conf, port, err := buildConfiguration(c)
		require.NoError(t, err)
		assert.Equal(t, "mongodb://localhost:27017", conf.MongoDBURI)
		assert.Equal(t, "perch_test", conf.DatabaseName)
		assert.Equal(t, 2, conf.NumWorkers)
		assert.Equal(t, "secret", conf.AuthToken)
		assert.Equal(t, 8080, port)
	})
	t.Run("MissingTokenFails", func(t *testing.T) {
		c := newTestContext(t, serviceTestFlags(), flags)
		_, _, err := buildConfiguration(c)
		assert.Error(t, err)
	})
	t.Run("DisabledAuthWithoutToken", func(t *testing.T) {
		args := append(serviceTestFlags(), "--disableAuth")
		c := newTestContext(t, args, flags)

		conf, port, err := buildConfiguration(c)
		require.NoError(t, err)
		assert.True(t, conf.AuthDisabled)
		assert.Equal(t, 3500, port)
	})
	t.Run("FileSuppliesDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		content := `runtime:
  port: 9000
  bearer_token: file-token
database:
  uri: mongodb://db.example.net:27017
  name: perch_file
  dial_timeout_seconds: 5
  socket_timeout_seconds: 90
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		args := append(serviceTestFlags(), "--config", path)
		c := newTestContext(t, args, flags)

		conf, port, err := buildConfiguration(c)
		require.NoError(t, err)
		assert.Equal(t, "mongodb://localhost:27017", conf.MongoDBURI, "explicit flags win over the file")
		assert.Equal(t, "perch_test", conf.DatabaseName)
		assert.Equal(t, "file-token", conf.AuthToken)
		assert.Equal(t, 9000, port)
		assert.Equal(t, 5*time.Second, conf.MongoDBDialTimeout)
		assert.Equal(t, 90*time.Second, conf.SocketTimeout)
	})
	t.Run("FlagTokenWinsOverFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		require.NoError(t, os.WriteFile(path, []byte("runtime:\n  bearer_token: file-token\n"), 0644))

		args := append(serviceTestFlags(), "--config", path, "--token", "flag-token")
		c := newTestContext(t, args, flags)

		conf, _, err := buildConfiguration(c)
		require.NoError(t, err)
		assert.Equal(t, "flag-token", conf.AuthToken)
	})
	t.Run("MissingConfigFile", func(t *testing.T) {
		args := append(serviceTestFlags(), "--config", filepath.Join(t.TempDir(), "missing.yml"))
		c := newTestContext(t, args, flags)
		_, _, err := buildConfiguration(c)
		assert.Error(t, err)
	})
}
