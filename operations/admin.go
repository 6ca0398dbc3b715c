package operations

import (
	"context"
	"fmt"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
	"github.com/netperch/perch/bootstrap"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Admin returns the ./perch admin sub-command object, which holds
// operator tooling that runs outside of the api service.
func Admin() cli.Command {
	return cli.Command{
		Name:  "admin",
		Usage: "manage a deployed perch installation",
		Subcommands: []cli.Command{
			provisionToken(),
		},
	}
}

func provisionToken() cli.Command {
	return cli.Command{
		Name:  "provision-token",
		Usage: "ensure the configuration artifact holds an ingestion credential",
		Flags: addPathFlag(
			cli.StringFlag{
				Name:  authTokenFlag,
				Usage: "candidate token, used only when the artifact has none",
			},
			cli.BoolFlag{
				Name:  skipRestartFlag,
				Usage: "skip the best-effort restart of the dependent service",
			}),
		Before: mergeBeforeFuncs(
			setFlagOrFirstPositional(pathFlagName),
			requireStringFlag(pathFlagName),
			requireFileExists(pathFlagName),
		),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			result, err := bootstrap.Provision(ctx, bootstrap.Options{
				Path:        c.String(pathFlagName),
				Token:       c.String(authTokenFlag),
				SkipRestart: c.Bool(skipRestartFlag),
			})
			if err != nil {
				return errors.Wrap(err, "problem provisioning token")
			}

			grip.Info(message.Fields{
				"message":   "provisioning complete",
				"path":      c.String(pathFlagName),
				"preserved": result.Preserved,
				"backup":    result.BackupPath,
			})
			fmt.Printf("%s=%s\n", perch.TokenOutputKey, result.Token)

			return nil
		},
	}
}
