package units

import (
	"context"
	"fmt"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/dependency"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const dbHealthCheckJobName = "db-health-check"

func init() {
	registry.AddJobType(dbHealthCheckJobName,
		func() amboy.Job { return makeDBHealthCheckJob() })
}

type dbHealthCheckJob struct {
	job.Base `bson:"job_base" json:"job_base" yaml:"job_base"`
	env      perch.Environment
}

// NewDBHealthCheckJob pings the database and logs a warning when it is
// unreachable. The ingest path surfaces its own storage errors, this
// job exists so operators see connectivity problems even when the
// service is idle.
func NewDBHealthCheckJob(env perch.Environment, id string) amboy.Job {
	j := makeDBHealthCheckJob()
	j.env = env
	j.SetID(fmt.Sprintf("%s-%s", dbHealthCheckJobName, id))
	return j
}

func makeDBHealthCheckJob() *dbHealthCheckJob {
	j := &dbHealthCheckJob{
		env: perch.GetEnvironment(),
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    dbHealthCheckJobName,
				Version: 0,
			},
		},
	}

	j.SetDependency(dependency.NewAlways())
	return j
}

func (j *dbHealthCheckJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	if j.env == nil {
		j.env = perch.GetEnvironment()
	}

	client, err := j.env.GetClient()
	if err != nil {
		j.AddError(errors.Wrap(err, "problem getting database client"))
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "database health check failed",
			"job_id":  j.ID(),
		}))
		j.AddError(errors.Wrap(err, "problem pinging database"))
		return
	}

	grip.Debug(message.Fields{
		"message":     "database health check passed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
