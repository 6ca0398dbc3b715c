package units

import (
	"context"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/mongodb/amboy"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
)

const tsFormat = "2006-01-02.15-04-05"

func StartCrons(ctx context.Context, env perch.Environment) error {
	opts := amboy.QueueOperationConfig{
		ContinueOnError: true,
		LogErrors:       false,
		DebugLogging:    false,
	}

	queue, err := env.GetQueue()
	if err != nil {
		return err
	}

	grip.Info(message.Fields{
		"message": "starting background cron jobs",
		"opts":    opts,
		"started": queue.Info().Started,
		"stats":   queue.Stats(ctx),
	})

	amboy.IntervalQueueOperation(ctx, queue, time.Minute, time.Now(), opts, func(ctx context.Context, queue amboy.Queue) error {
		ts := utility.RoundPartOfMinute(0).Format(tsFormat)
		catcher := grip.NewBasicCatcher()
		catcher.Add(queue.Put(ctx, NewAmboyStatsCollector(env, ts)))
		catcher.Add(queue.Put(ctx, NewDBHealthCheckJob(env, ts)))
		return catcher.Resolve()
	})

	return nil
}
