package datastore

import (
	"context"
	"fmt"

	"github.com/gogf/gf/v2/container/gmap"
	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/os/glog"
	"go.mongodb.org/mongo-driver/mongo"
)

type ManagerOptions struct {
	Metrics *Metrics
	Logger  *glog.Logger
}

// Manager hands out one DataStore per database name, connecting on first use.
type Manager struct {
	config  Config
	stores  *gmap.StrAnyMap
	metrics *Metrics
	logger  *glog.Logger
}

func NewManager(config Config, opts ...ManagerOptions) *Manager {
	option := ManagerOptions{}
	if len(opts) > 0 {
		option = opts[0]
	}
	if option.Logger == nil {
		option.Logger = glog.DefaultLogger()
	}
	return &Manager{
		config:  config,
		stores:  gmap.NewStrAnyMap(true),
		metrics: option.Metrics,
		logger:  option.Logger,
	}
}

func NewManagerWithHost(host string, port int, opts ...ManagerOptions) *Manager {
	return NewManager(Config{Hosts: []string{fmt.Sprintf("%s:%d", host, port)}}, opts...)
}

// Get returns the DataStore of database, connecting and pinging the server
// the first time.
func (m *Manager) Get(ctx context.Context, database string) (*DataStore, error) {
	if v := m.stores.Get(database); v != nil {
		return v.(*DataStore), nil
	}
	store, err := m.connect(ctx, database)
	if err != nil {
		return nil, err
	}
	if !m.stores.SetIfNotExist(database, store) {
		// 并发时已经有人先连上了
		_ = store.Close(ctx)
		return m.stores.Get(database).(*DataStore), nil
	}
	return store, nil
}

func (m *Manager) Exists(database string) bool {
	return m.stores.Contains(database)
}

// Drop drops database on the server and closes its DataStore.
func (m *Manager) Drop(ctx context.Context, database string) error {
	store, err := m.Get(ctx, database)
	if err != nil {
		return err
	}
	if err = store.Database().Drop(ctx); err != nil {
		return gerror.Wrapf(err, "drop database %s", database)
	}
	m.logger.Infof(ctx, "Manager: database %s dropped", database)
	return m.Close(ctx, database)
}

// Close disconnects the DataStore of database. Unknown names are ignored.
func (m *Manager) Close(ctx context.Context, database string) error {
	v := m.stores.Remove(database)
	if v == nil {
		return nil
	}
	return v.(*DataStore).Close(ctx)
}

func (m *Manager) CloseAll(ctx context.Context) error {
	var first error
	for _, database := range m.stores.Keys() {
		if err := m.Close(ctx, database); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) connect(ctx context.Context, database string) (*DataStore, error) {
	clientOptions, err := m.config.ClientOptions()
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, gerror.Wrapf(err, "connect to %s", database)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, gerror.Wrapf(err, "ping %s", database)
	}
	m.logger.Debugf(ctx, "Manager: connected to database %s", database)
	config := m.config
	return NewDataStore(client, database, DataStoreOptions{
		Config:  &config,
		Metrics: m.metrics,
		Logger:  m.logger,
	}), nil
}
