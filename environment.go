package perch

import (
	"context"
	"sync"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var globalEnv *envState

func init()                       { resetEnv() }
func GetEnvironment() Environment { return globalEnv }

func resetEnv() { globalEnv = &envState{name: "global", conf: &Configuration{}} }

// Environment objects provide access to shared configuration and state, in a
// way that you can isolate and test for in units and requests.
type Environment interface {
	Configure(context.Context, *Configuration) error

	GetConf() (*Configuration, error)

	// GetQueue retrieves the application's shared queue, which is cached
	// for easy access from within units or inside of requests or command
	// line operations.
	GetQueue() (amboy.Queue, error)
	SetQueue(amboy.Queue) error

	GetClient() (*mongo.Client, error)
	GetDB() *mongo.Database

	GetStatsCache() *StatsCache

	Close(context.Context) error
}

type envState struct {
	name       string
	client     *mongo.Client
	queue      amboy.Queue
	conf       *Configuration
	statsCache *StatsCache
	mutex      sync.RWMutex
}

func (c *envState) Configure(ctx context.Context, conf *Configuration) error {
	if err := conf.Validate(); err != nil {
		return errors.WithStack(err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.conf = conf

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(conf.MongoDBURI).
		SetConnectTimeout(conf.MongoDBDialTimeout).
		SetSocketTimeout(conf.SocketTimeout).
		SetServerSelectionTimeout(conf.MongoDBDialTimeout))
	if err != nil {
		return errors.Wrapf(err, "could not connect to db %s", conf.MongoDBURI)
	}

	pingCtx, cancel := context.WithTimeout(ctx, conf.MongoDBDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return errors.Wrapf(err, "could not reach db %s", conf.MongoDBURI)
	}
	c.client = client

	if c.queue == nil {
		c.queue = queue.NewLocalLimitedSize(conf.NumWorkers, 1024)
		grip.Infof("configured local queue with %d workers", conf.NumWorkers)
	}

	c.statsCache = NewStatsCache(StatsCacheIngest)
	c.statsCache.Start(ctx)

	return nil
}

func (c *envState) GetConf() (*Configuration, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.conf == nil {
		return nil, errors.New("configuration is not set")
	}

	// copy the struct
	out := &Configuration{}
	*out = *c.conf

	return out, nil
}

func (c *envState) SetQueue(q amboy.Queue) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.queue != nil {
		return errors.New("queue exists, cannot overwrite")
	}

	if q == nil {
		return errors.New("cannot set queue to nil")
	}

	c.queue = q
	grip.Noticef("caching a '%T' queue in the '%s' service cache for use in tasks", q, c.name)
	return nil
}

func (c *envState) GetQueue() (amboy.Queue, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.queue == nil {
		return nil, errors.New("no queue defined in the services cache")
	}

	return c.queue, nil
}

func (c *envState) GetClient() (*mongo.Client, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.client == nil {
		return nil, errors.New("no valid db client defined")
	}

	return c.client, nil
}

func (c *envState) GetDB() *mongo.Database {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.client == nil || c.conf == nil || c.conf.DatabaseName == "" {
		return nil
	}

	return c.client.Database(c.conf.DatabaseName)
}

func (c *envState) GetStatsCache() *StatsCache {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.statsCache
}

func (c *envState) Close(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.client == nil {
		return nil
	}

	grip.Info(message.Fields{
		"message": "closing environment",
		"name":    c.name,
	})

	err := c.client.Disconnect(ctx)
	c.client = nil

	return errors.Wrap(err, "problem disconnecting db client")
}
