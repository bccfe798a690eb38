package datastore

import (
	"context"

	"github.com/gogf/gf/v2/container/gmap"
	"github.com/gogf/gf/v2/container/gtype"
	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/gogf/gf/v2/util/gconv"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type DataStoreOptions struct {
	Config  *Config
	Metrics *Metrics
	Logger  *glog.Logger
}

// DataStore is a handle on one database of a MongoDB server. Unlike the
// driver, where all databases of a client share one configuration, every
// DataStore owns its client so each database can be configured on its own.
type DataStore struct {
	client      *mongo.Client
	db          *mongo.Database
	config      *Config
	collections *gmap.StrAnyMap
	metrics     *Metrics
	logger      *glog.Logger
	closed      *gtype.Bool
}

func NewDataStore(client *mongo.Client, database string, opts ...DataStoreOptions) *DataStore {
	option := DataStoreOptions{}
	if len(opts) > 0 {
		option = opts[0]
	}
	if option.Logger == nil {
		option.Logger = glog.DefaultLogger()
	}
	return &DataStore{
		client:      client,
		db:          client.Database(database, options.Database().SetWriteConcern(writeconcern.Majority())),
		config:      option.Config,
		collections: gmap.NewStrAnyMap(true),
		metrics:     option.Metrics,
		logger:      option.Logger,
		closed:      gtype.NewBool(),
	}
}

// Test runs dbStats and reports whether the server answered ok.
func (d *DataStore) Test(ctx context.Context) (bool, error) {
	stats, err := d.Stats(ctx, "")
	if err != nil {
		return false, err
	}
	return gconv.Float64(stats["ok"]) == 1.0, nil
}

// GetCollection returns the cached wrapper for name, creating it on first use.
// No server call is made.
func (d *DataStore) GetCollection(name string) *Collection {
	return d.collections.GetOrSetFuncLock(name, func() interface{} {
		d.logger.Debugf(context.Background(), "DataStore: new MongoDB collection '%s' created", name)
		return newCollection(NewNativeQuery(d.db.Collection(name)), d.db.Name(), name, d.metrics, d.logger)
	}).(*Collection)
}

// CreateCollection creates name on the server when missing.
func (d *DataStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	names, err := d.CollectionNames(ctx)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(names, name) {
		if err = d.db.CreateCollection(ctx, name); err != nil {
			return nil, gerror.Wrapf(err, "create collection %s", name)
		}
	}
	return d.GetCollection(name), nil
}

// DropCollection drops name when it exists and forgets its wrapper.
func (d *DataStore) DropCollection(ctx context.Context, name string) error {
	names, err := d.CollectionNames(ctx)
	if err != nil {
		return err
	}
	if lo.Contains(names, name) {
		if err = d.db.Collection(name).Drop(ctx); err != nil {
			return gerror.Wrapf(err, "drop collection %s", name)
		}
	}
	d.collections.Remove(name)
	return nil
}

func (d *DataStore) CollectionNames(ctx context.Context) ([]string, error) {
	if d.closed.Val() {
		return nil, ErrStoreClosed
	}
	names, err := d.db.ListCollectionNames(ctx, D{})
	if err != nil {
		return nil, gerror.Wrapf(err, "list collections of %s", d.db.Name())
	}
	return names, nil
}

// Stats runs collStats for a named collection and dbStats for "".
func (d *DataStore) Stats(ctx context.Context, collection string) (M, error) {
	if d.closed.Val() {
		return nil, ErrStoreClosed
	}
	command := D{{Key: "dbStats", Value: 1}}
	if collection != "" {
		command = D{{Key: "collStats", Value: collection}}
	}
	var result M
	if err := d.db.RunCommand(ctx, command).Decode(&result); err != nil {
		return nil, gerror.Wrapf(err, "stats of %s", d.db.Name())
	}
	return result, nil
}

// Collections is a snapshot of the wrappers created so far.
func (d *DataStore) Collections() map[string]*Collection {
	result := make(map[string]*Collection, d.collections.Size())
	d.collections.Iterator(func(k string, v interface{}) bool {
		result[k] = v.(*Collection)
		return true
	})
	return result
}

// WithTransaction runs fn inside a session transaction. When ctx already
// carries a session fn joins it instead of starting a new one.
func (d *DataStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	if d.closed.Val() {
		return nil, ErrStoreClosed
	}
	session, err := d.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)
	return session.WithTransaction(ctx, func(ctx mongo.SessionContext) (interface{}, error) {
		return fn(ctx)
	})
}

func (d *DataStore) Database() *mongo.Database {
	return d.db
}

func (d *DataStore) DatabaseName() string {
	return d.db.Name()
}

func (d *DataStore) Config() *Config {
	return d.config
}

func (d *DataStore) Close(ctx context.Context) error {
	if d.closed.Set(true) {
		return nil
	}
	d.logger.Infof(ctx, "DataStore: connection to %s closed", d.db.Name())
	return d.client.Disconnect(ctx)
}
