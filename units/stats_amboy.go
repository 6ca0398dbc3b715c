package units

import (
	"context"
	"fmt"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/dependency"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
)

const amboyStatsCollectorJobName = "amboy-stats-collector"

func init() {
	registry.AddJobType(amboyStatsCollectorJobName,
		func() amboy.Job { return makeAmboyStatsCollector() })
}

type amboyStatsCollector struct {
	job.Base `bson:"job_base" json:"job_base" yaml:"job_base"`
	env      perch.Environment
}

// NewAmboyStatsCollector reports the status of the queue registered in
// the service Environment.
func NewAmboyStatsCollector(env perch.Environment, id string) amboy.Job {
	j := makeAmboyStatsCollector()
	j.env = env
	j.SetID(fmt.Sprintf("%s-%s", amboyStatsCollectorJobName, id))
	return j
}

func makeAmboyStatsCollector() *amboyStatsCollector {
	j := &amboyStatsCollector{
		env: perch.GetEnvironment(),
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    amboyStatsCollectorJobName,
				Version: 0,
			},
		},
	}

	j.SetDependency(dependency.NewAlways())
	return j
}

func (j *amboyStatsCollector) Run(ctx context.Context) {
	defer j.MarkComplete()

	if j.env == nil {
		j.env = perch.GetEnvironment()
	}

	queue, err := j.env.GetQueue()
	if err != nil {
		j.AddError(err)
		return
	}

	if queue != nil && queue.Info().Started {
		grip.Info(message.Fields{
			"message": "amboy queue stats",
			"stats":   queue.Stats(ctx),
		})
	}
}
