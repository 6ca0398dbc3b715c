package perch

import (
	"time"

	"github.com/mongodb/grip"
	"github.com/netperch/perch/util"
	"github.com/pkg/errors"
)

// Configuration defines the runtime settings of the service.
type Configuration struct {
	DatabaseName       string
	MongoDBURI         string
	MongoDBDialTimeout time.Duration
	SocketTimeout      time.Duration
	NumWorkers         int

	// AuthToken is the provisioned ingestion credential. AuthDisabled is
	// an explicit administrative opt-out of the credential check, never a
	// fallback for a missing token.
	AuthToken    string
	AuthDisabled bool
}

func (c *Configuration) Validate() error {
	catcher := grip.NewBasicCatcher()

	if c.MongoDBURI == "" {
		catcher.Add(errors.New("must specify a mongodb url"))
	}
	if c.DatabaseName == "" {
		catcher.Add(errors.New("must specify a database name"))
	}
	if c.NumWorkers < 1 {
		catcher.Add(errors.New("must specify a valid number of workers"))
	}
	if c.AuthToken == "" && !c.AuthDisabled {
		catcher.Add(errors.New("must specify an auth token unless auth is explicitly disabled"))
	}
	if c.MongoDBDialTimeout <= 0 {
		c.MongoDBDialTimeout = 2 * time.Second
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = time.Minute
	}

	return catcher.Resolve()
}

// FileConfiguration is the schema of the configuration artifact. Only the
// sections named here are interpreted; provisioning tooling round-trips any
// other section untouched.
type FileConfiguration struct {
	Runtime  RuntimeConfiguration  `yaml:"runtime"`
	Database DatabaseConfiguration `yaml:"database"`
}

type RuntimeConfiguration struct {
	Port         int    `yaml:"port"`
	BearerToken  string `yaml:"bearer_token"`
	AuthDisabled bool   `yaml:"auth_disabled"`
}

type DatabaseConfiguration struct {
	URI                string `yaml:"uri"`
	Name               string `yaml:"name"`
	DialTimeoutSeconds int    `yaml:"dial_timeout_seconds"`
	SocketTimeoutSecs  int    `yaml:"socket_timeout_seconds"`
}

// LoadFileConfiguration reads a configuration artifact from disk.
func LoadFileConfiguration(path string) (*FileConfiguration, error) {
	conf := &FileConfiguration{}
	if err := util.ReadFileYAML(path, conf); err != nil {
		return nil, errors.WithStack(err)
	}

	return conf, nil
}
