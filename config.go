package datastore

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/os/gcfg"
	"github.com/gogf/gf/v2/util/gconv"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultHost      = "localhost"
	DefaultPort      = 27017
	ConfigSectionKey = "mongodb"
)

// Config describes how a Manager connects. URI, when set, is applied first
// and the remaining fields override it. Timeouts are in milliseconds.
type Config struct {
	URI                     string   `json:"uri"`
	Hosts                   []string `json:"hosts"`
	Username                string   `json:"username"`
	Password                string   `json:"password"`
	AuthenticationDatabase  string   `json:"authenticationDatabase"`
	AuthenticationMechanism string   `json:"authenticationMechanism"`
	ReplicaSet              string   `json:"replicaSet"`
	ReadPreference          string   `json:"readPreference"`
	ConnectTimeout          int      `json:"connectTimeout"`
	SocketTimeout           int      `json:"socketTimeout"`
	ServerSelectionTimeout  int      `json:"serverSelectionTimeout"`
	MaxPoolSize             uint64   `json:"maxPoolSize"`
	MinPoolSize             uint64   `json:"minPoolSize"`
	SSL                     bool     `json:"ssl"`
	Direct                  bool     `json:"direct"`
	AppName                 string   `json:"appName"`
}

// LoadConfig reads the "mongodb" section of a gf configuration file
// (yaml, toml, json...).
func LoadConfig(ctx context.Context, file string) (*Config, error) {
	adapter, err := gcfg.NewAdapterFile(file)
	if err != nil {
		return nil, gerror.Wrapf(err, "open config %s", file)
	}
	section, err := adapter.Get(ctx, ConfigSectionKey)
	if err != nil {
		return nil, gerror.Wrapf(err, "read config %s", file)
	}
	if section == nil {
		return nil, gerror.Newf("config %s has no %s section", file, ConfigSectionKey)
	}
	return ParseConfig(section)
}

// ParseConfig converts a loosely typed map (e.g. a decoded config section) into a Config.
func ParseConfig(v any) (*Config, error) {
	var config Config
	if err := gconv.Struct(v, &config); err != nil {
		return nil, gerror.Wrap(err, "parse mongodb config")
	}
	return &config, nil
}

func (c Config) ClientOptions() (*options.ClientOptions, error) {
	clientOptions := options.Client()
	if c.URI != "" {
		clientOptions.ApplyURI(c.URI)
	}
	if len(c.Hosts) > 0 {
		clientOptions.SetHosts(c.Hosts)
	} else if c.URI == "" {
		clientOptions.SetHosts([]string{DefaultHost + ":" + gconv.String(DefaultPort)})
	}
	if c.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username:      c.Username,
			Password:      c.Password,
			AuthSource:    c.AuthenticationDatabase,
			AuthMechanism: c.AuthenticationMechanism,
		})
	}
	if c.ReplicaSet != "" {
		clientOptions.SetReplicaSet(c.ReplicaSet)
	}
	if c.ReadPreference != "" {
		mode, err := readpref.ModeFromString(c.ReadPreference)
		if err != nil {
			return nil, gerror.Wrapf(err, "read preference %s", c.ReadPreference)
		}
		readPreference, err := readpref.New(mode)
		if err != nil {
			return nil, gerror.Wrapf(err, "read preference %s", c.ReadPreference)
		}
		clientOptions.SetReadPreference(readPreference)
	}
	if c.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(time.Duration(c.ConnectTimeout) * time.Millisecond)
	}
	if c.SocketTimeout > 0 {
		clientOptions.SetSocketTimeout(time.Duration(c.SocketTimeout) * time.Millisecond)
	}
	if c.ServerSelectionTimeout > 0 {
		clientOptions.SetServerSelectionTimeout(time.Duration(c.ServerSelectionTimeout) * time.Millisecond)
	}
	if c.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(c.MaxPoolSize)
	}
	if c.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(c.MinPoolSize)
	}
	if c.SSL {
		clientOptions.SetTLSConfig(&tls.Config{})
	}
	if c.Direct {
		clientOptions.SetDirect(true)
	}
	if c.AppName != "" {
		clientOptions.SetAppName(c.AppName)
	}
	if err := clientOptions.Validate(); err != nil {
		return nil, gerror.Wrap(err, "invalid mongodb client options")
	}
	return clientOptions, nil
}
