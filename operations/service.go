package operations

import (
	"context"

	"github.com/mongodb/grip"
	"github.com/netperch/perch"
	"github.com/netperch/perch/model"
	"github.com/netperch/perch/rest"
	"github.com/netperch/perch/units"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Service returns the ./perch service sub-command object, which is
// responsible for starting the api service.
func Service() cli.Command {
	return cli.Command{
		Name:  "service",
		Usage: "run the perch api service",
		Flags: mergeFlags(baseFlags(), dbFlags(), serviceFlags()),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			env := perch.GetEnvironment()

			_, port, err := configure(ctx, env, c)
			if err != nil {
				return errors.WithStack(err)
			}
			defer func() {
				grip.Warning(errors.Wrap(env.Close(ctx), "problem closing environment"))
			}()

			if err := model.EnsureIndexes(ctx, env); err != nil {
				return errors.Wrap(err, "problem ensuring indexes")
			}

			if err := units.StartCrons(ctx, env); err != nil {
				return errors.Wrap(err, "problem starting background jobs")
			}

			service := &rest.Service{
				Port:        port,
				Environment: env,
			}
			if err := service.Validate(); err != nil {
				return errors.Wrap(err, "problem validating service")
			}

			grip.Noticef("starting perch service on :%d", port)
			if err := service.Start(ctx); err != nil {
				return errors.Wrap(err, "problem running rest service")
			}
			grip.Info("completed service, terminating.")

			return nil
		},
	}
}
