package operations

import (
	"context"
	"time"

	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// configure assembles a Configuration from the optional yaml artifact
// and the command line flags, flags taking precedence, and then
// connects the environment.
func configure(ctx context.Context, env perch.Environment, c *cli.Context) (*perch.Configuration, int, error) {
	conf, port, err := buildConfiguration(c)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	if err := env.Configure(ctx, conf); err != nil {
		return nil, 0, errors.Wrap(err, "problem configuring environment")
	}

	return conf, port, nil
}

func buildConfiguration(c *cli.Context) (*perch.Configuration, int, error) {
	conf := &perch.Configuration{
		MongoDBURI:   c.String(dbURIFlag),
		DatabaseName: c.String(dbNameFlag),
		NumWorkers:   c.Int(numWorkersFlag),
		AuthToken:    c.String(authTokenFlag),
		AuthDisabled: c.Bool(disableAuthFlag),
	}
	port := c.Int(servicePortFlag)

	if path := c.String(configFlag); path != "" {
		fileConf, err := perch.LoadFileConfiguration(path)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "problem loading configuration from '%s'", path)
		}

		if !c.IsSet(dbURIFlag) && fileConf.Database.URI != "" {
			conf.MongoDBURI = fileConf.Database.URI
		}
		if !c.IsSet(dbNameFlag) && fileConf.Database.Name != "" {
			conf.DatabaseName = fileConf.Database.Name
		}
		if fileConf.Database.DialTimeoutSeconds > 0 {
			conf.MongoDBDialTimeout = time.Duration(fileConf.Database.DialTimeoutSeconds) * time.Second
		}
		if fileConf.Database.SocketTimeoutSecs > 0 {
			conf.SocketTimeout = time.Duration(fileConf.Database.SocketTimeoutSecs) * time.Second
		}
		if conf.AuthToken == "" {
			conf.AuthToken = fileConf.Runtime.BearerToken
		}
		if !c.IsSet(disableAuthFlag) {
			conf.AuthDisabled = fileConf.Runtime.AuthDisabled
		}
		if !c.IsSet(servicePortFlag) && fileConf.Runtime.Port != 0 {
			port = fileConf.Runtime.Port
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "invalid configuration")
	}

	return conf, port, nil
}
