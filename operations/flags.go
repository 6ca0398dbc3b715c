package operations

import (
	"strings"

	"github.com/netperch/perch"
	"github.com/urfave/cli"
)

////////////////////////////////////////////////////////////////////////
//
// Flag Name Constants

const (
	configFlag   = "config"
	pathFlagName = "path"

	numWorkersFlag = "workers"

	dbURIFlag  = "dbUri"
	dbNameFlag = "dbName"

	servicePortFlag = "port"
	authTokenFlag   = "token"
	disableAuthFlag = "disableAuth"
	skipRestartFlag = "no-restart"
)

////////////////////////////////////////////////////////////////////////
//
// Utility Functions

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func mergeFlags(in ...[]cli.Flag) []cli.Flag {
	out := []cli.Flag{}

	for idx := range in {
		out = append(out, in[idx]...)
	}

	return out
}

////////////////////////////////////////////////////////////////////////
//
// Flag Groups

func addPathFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(pathFlagName, "filename", "file", "f"),
		Usage: "path to the configuration artifact",
	})
}

func dbFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:   dbURIFlag,
			Usage:  "specify a mongodb connection string",
			Value:  "mongodb://localhost:27017",
			EnvVar: "PERCH_MONGODB_URL",
		},
		cli.StringFlag{
			Name:   dbNameFlag,
			Usage:  "specify a database name to use",
			Value:  "perch",
			EnvVar: "PERCH_DATABASE_NAME",
		})
}

func serviceFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:   joinFlagNames(servicePortFlag, "p"),
			Usage:  "specify a port to run the service on",
			Value:  3500,
			EnvVar: "PERCH_SERVICE_PORT",
		},
		cli.StringFlag{
			Name:  configFlag,
			Usage: "path to a yaml configuration artifact, flags override its values",
		},
		cli.StringFlag{
			Name:   authTokenFlag,
			Usage:  "bearer token that ingestion clients must present",
			EnvVar: perch.TokenEnvVar,
		},
		cli.BoolFlag{
			Name:  disableAuthFlag,
			Usage: "explicitly disable the credential check, for local development only",
		})
}

func baseFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:  numWorkersFlag,
			Usage: "specify the number of worker jobs this process will have",
			Value: 2,
		})
}
