package datastore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/os/gctx"
	"github.com/gogf/gf/v2/util/gconv"
	"github.com/samber/lo"
)

// export DATASTORE_TEST_MONGODB=mongodb://127.0.0.1:27017/?connect=direct
var testMongodbUrl = os.Getenv("DATASTORE_TEST_MONGODB")

const testDatabase = "datastore_test"

var errRollback = errors.New("rollback")

func testDataStore(t *testing.T, fun func(ctx context.Context, store *DataStore) error) error {
	if testMongodbUrl == "" {
		t.Skip("DATASTORE_TEST_MONGODB is not set")
	}
	ctx := gctx.New()
	manager := NewManager(Config{URI: testMongodbUrl})
	store, err := manager.Get(ctx, testDatabase)
	if err != nil {
		return gerror.Wrap(err, "connect test database")
	}
	defer manager.Drop(ctx, testDatabase)
	if err = store.Database().Drop(ctx); err != nil {
		return gerror.Wrap(err, "reset test database")
	}
	return fun(ctx, store)
}

// createTestCollection fills name with n documents {id: i, name: John, surname: Doe, age: i % 5}.
func createTestCollection(ctx context.Context, store *DataStore, name string, n int) (*Collection, error) {
	c, err := store.CreateCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	docs := make([]M, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, M{"id": i, "name": "John", "surname": "Doe", "age": i % 5})
	}
	if _, err = c.Native().InsertMany(ctx, docs, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func TestDataStoreTest(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		ok, err := store.Test(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("dbStats not ok")
		}
		if store.DatabaseName() != testDatabase {
			return errors.New("database name")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}

func TestGetCollection(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		a := store.GetCollection("people")
		b := store.GetCollection("people")
		if a != b {
			return errors.New("collections should be cached")
		}
		if _, ok := store.Collections()["people"]; !ok {
			return errors.New("collection missing from snapshot")
		}
		// no server call is made for GetCollection
		names, err := store.CollectionNames(ctx)
		if err != nil {
			return err
		}
		if lo.Contains(names, "people") {
			return errors.New("people should not exist on the server yet")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}

func TestCreateAndDropCollection(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		if _, err := store.CreateCollection(ctx, "tempCollection"); err != nil {
			return err
		}
		// creating twice is a no-op
		if _, err := store.CreateCollection(ctx, "tempCollection"); err != nil {
			return err
		}
		names, err := store.CollectionNames(ctx)
		if err != nil {
			return err
		}
		if !lo.Contains(names, "tempCollection") {
			return errors.New("collection not created")
		}

		if err = store.DropCollection(ctx, "tempCollection"); err != nil {
			return err
		}
		if err = store.DropCollection(ctx, "neverCreated"); err != nil {
			return err
		}
		names, err = store.CollectionNames(ctx)
		if err != nil {
			return err
		}
		if lo.Contains(names, "tempCollection") {
			return errors.New("collection not dropped")
		}
		if _, ok := store.Collections()["tempCollection"]; ok {
			return errors.New("dropped collection still cached")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}

func TestStats(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		if _, err := createTestCollection(ctx, store, "stats", 10); err != nil {
			return err
		}
		stats, err := store.Stats(ctx, "")
		if err != nil {
			return err
		}
		if stats["db"] != testDatabase {
			return errors.New("dbStats")
		}
		stats, err = store.Stats(ctx, "stats")
		if err != nil {
			return err
		}
		if stats["ns"] != testDatabase+".stats" || gconv.Int(stats["count"]) != 10 {
			return errors.New("collStats")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}

func TestDataStoreClose(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		if err := store.Close(ctx); err != nil {
			return err
		}
		if err := store.Close(ctx); err != nil {
			return errors.New("second close should be a no-op")
		}
		if _, err := store.CollectionNames(ctx); !errors.Is(err, ErrStoreClosed) {
			return errors.New("expected ErrStoreClosed")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}

func TestWithTransaction(t *testing.T) {
	err := testDataStore(t, func(ctx context.Context, store *DataStore) error {
		var hello M
		if err := store.Database().RunCommand(ctx, D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
			return err
		}
		if _, ok := hello["setName"]; !ok {
			t.Skip("transactions need a replica set")
		}
		c, err := createTestCollection(ctx, store, "transaction", 0)
		if err != nil {
			return err
		}
		_, err = store.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
			if _, err := c.Insert(ctx, M{"id": 1}, nil); err != nil {
				return nil, err
			}
			_, err := store.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
				return c.Insert(ctx, M{"id": 2}, nil)
			})
			if err != nil {
				return nil, err
			}
			return nil, errRollback
		})
		if !errors.Is(err, errRollback) {
			return gerror.Wrap(err, "expected rollback")
		}
		count, err := c.Count(ctx)
		if err != nil {
			return err
		}
		if count.First() != 0 {
			return errors.New("transaction was not rolled back")
		}
		return nil
	})
	if err != nil {
		t.Error(err)
		return
	}
}
