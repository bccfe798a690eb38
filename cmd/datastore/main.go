package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aundis/datastore"
	"github.com/gogf/gf/v2/os/gctx"
	"github.com/gogf/gf/v2/os/glog"
	cli "github.com/jawher/mow.cli"
	"github.com/kr/pretty"
	"go.mongodb.org/mongo-driver/bson"
)

func main() {
	app := cli.App("datastore", "Inspect a MongoDB database through the datastore layer")
	configFile := app.StringOpt("c config", "", "config file with a mongodb section")
	uri := app.StringOpt("uri", "", "mongodb connection uri, overrides hosts from the config file")
	dbname := app.StringOpt("db", "test", "database name")
	debug := app.BoolOpt("debug", false, "log every timed operation")

	run := func(fn func(ctx context.Context, store *datastore.DataStore) error) {
		ctx := gctx.New()
		logger := glog.New()
		if *debug {
			logger.SetLevel(glog.LEVEL_ALL)
		} else {
			logger.SetLevel(glog.LEVEL_INFO | glog.LEVEL_NOTI | glog.LEVEL_WARN | glog.LEVEL_ERRO | glog.LEVEL_CRIT)
		}
		config := &datastore.Config{}
		if *configFile != "" {
			var err error
			if config, err = datastore.LoadConfig(ctx, *configFile); err != nil {
				fail(err)
			}
		}
		if *uri != "" {
			config.URI = *uri
			config.Hosts = nil
		}
		manager := datastore.NewManager(*config, datastore.ManagerOptions{Logger: logger})
		err := withStore(ctx, manager, *dbname, fn)
		_ = manager.CloseAll(ctx)
		if err != nil {
			fail(err)
		}
	}

	app.Command("ping", "run dbStats and report whether the server answered ok", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				ok, err := store.Test(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s ok=%t\n", store.DatabaseName(), ok)
				return nil
			})
		}
	})

	app.Command("collections", "list collection names", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				names, err := store.CollectionNames(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		}
	})

	app.Command("stats", "database stats, or collection stats when COLL is given", func(cmd *cli.Cmd) {
		cmd.Spec = "[COLL]"
		coll := cmd.StringArg("COLL", "", "collection name")
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				stats, err := store.Stats(ctx, *coll)
				if err != nil {
					return err
				}
				pretty.Println(stats)
				return nil
			})
		}
	})

	app.Command("count", "count documents matching QUERY", func(cmd *cli.Cmd) {
		cmd.Spec = "COLL [QUERY]"
		coll := cmd.StringArg("COLL", "", "collection name")
		query := cmd.StringArg("QUERY", "{}", "extended JSON filter")
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				filter, err := parseQuery(*query)
				if err != nil {
					return err
				}
				result, err := store.GetCollection(*coll).CountQuery(ctx, filter, nil)
				if err != nil {
					return err
				}
				fmt.Printf("%d (%s)\n", result.First(), result.DbTime)
				return nil
			})
		}
	})

	app.Command("find", "stream documents matching QUERY as extended JSON lines", func(cmd *cli.Cmd) {
		cmd.Spec = "[OPTIONS] COLL [QUERY]"
		coll := cmd.StringArg("COLL", "", "collection name")
		query := cmd.StringArg("QUERY", "{}", "extended JSON filter")
		limit := cmd.IntOpt("limit", 0, "maximum number of documents")
		skip := cmd.IntOpt("skip", 0, "documents to skip")
		sort := cmd.StringOpt("sort", "", "sort fields, e.g. -age,name")
		include := cmd.StringOpt("include", "", "comma separated fields to include")
		exclude := cmd.StringOpt("exclude", "", "comma separated fields to exclude")
		count := cmd.BoolOpt("count", false, "report the total number of matches")
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				filter, err := parseQuery(*query)
				if err != nil {
					return err
				}
				options := datastore.NewQueryOptions().
					Add("limit", *limit).
					Add("skip", *skip).
					Add("sort", *sort).
					Add("include", *include).
					Add("exclude", *exclude).
					Add("count", *count)
				collection := store.GetCollection(*coll).WithWriter(datastore.NewJSONWriter(os.Stdout))
				result, err := collection.Find(ctx, filter, nil, options)
				if err != nil {
					return err
				}
				if result.HasError() {
					return fmt.Errorf("writing results: %s", result.ErrorMsg)
				}
				fmt.Fprintf(os.Stderr, "%d documents in %s\n", result.NumTotalResults, result.DbTime)
				return nil
			})
		}
	})

	app.Command("indexes", "list the indexes of COLL", func(cmd *cli.Cmd) {
		cmd.Spec = "COLL"
		coll := cmd.StringArg("COLL", "", "collection name")
		cmd.Action = func() {
			run(func(ctx context.Context, store *datastore.DataStore) error {
				result, err := store.GetCollection(*coll).GetIndex(ctx)
				if err != nil {
					return err
				}
				for _, index := range result.Result {
					fmt.Printf("%# v\n", pretty.Formatter(index))
				}
				return nil
			})
		}
	})

	if err := app.Run(os.Args); err != nil {
		fail(err)
	}
}

// withStore runs fn on the store of database. Errors are returned so the
// caller can close the manager before exiting.
func withStore(ctx context.Context, manager *datastore.Manager, database string, fn func(ctx context.Context, store *datastore.DataStore) error) error {
	store, err := manager.Get(ctx, database)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func parseQuery(s string) (bson.M, error) {
	var query bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &query); err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", s, err)
	}
	return query, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	cli.Exit(1)
}
