package datastore

import (
	"testing"
	"time"

	"github.com/gogf/gf/v2/os/gctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

func TestProjectionFromOptions(t *testing.T) {
	assert.Equal(t, M{"_id": 0}, projectionFromOptions(nil))
	assert.Equal(t, M{"_id": 0, "name": 1, "age": 1},
		projectionFromOptions(QueryOptions{"include": "name,age"}))
	assert.Equal(t, M{"_id": 0, "surname": 0},
		projectionFromOptions(QueryOptions{"exclude": []string{"surname"}}))
	// include wins over exclude
	assert.Equal(t, M{"_id": 0, "name": 1},
		projectionFromOptions(QueryOptions{"include": "name", "exclude": "age"}))
}

func TestSortFromOption(t *testing.T) {
	assert.Nil(t, sortFromOption(nil))
	assert.Nil(t, sortFromOption(""))
	assert.Nil(t, sortFromOption([]string{}))
	assert.Equal(t, D{{Key: "age", Value: -1}, {Key: "name", Value: 1}}, sortFromOption("-age, name"))
	assert.Equal(t, D{{Key: "id", Value: 1}}, sortFromOption([]any{"+id"}))

	doc := D{{Key: "x", Value: 1}}
	assert.Equal(t, doc, sortFromOption(doc))
	assert.Equal(t, M{"x": -1}, sortFromOption(map[string]any{"x": -1}))
	assert.Equal(t, M{"age": -1}, sortFromOption(map[string]int{"age": -1}))
	assert.Equal(t, M{"age": int32(1)}, sortFromOption(map[string]int32{"age": 1}))
	assert.Nil(t, sortFromOption(map[string]int{}))
}

func TestConvStrings2MongoSort(t *testing.T) {
	assert.Equal(t, D{}, convStrings2MongoSort(nil))
	assert.Equal(t, D{
		primitive.E{Key: "a", Value: 1},
		primitive.E{Key: "b", Value: -1},
	}, convStrings2MongoSort([]string{"a", " ", "-b"}))
}

func TestFindOptions(t *testing.T) {
	opts := findOptions(nil, QueryOptions{
		"limit":     10,
		"skip":      "5",
		"sort":      "-age",
		"include":   "name",
		"maxTimeMS": 1500,
	})
	require.NotNil(t, opts.Limit)
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.BatchSize)
	require.NotNil(t, opts.MaxTime)
	assert.Equal(t, int64(10), *opts.Limit)
	assert.Equal(t, int64(5), *opts.Skip)
	assert.Equal(t, int32(defaultBatchSize), *opts.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, *opts.MaxTime)
	assert.Equal(t, D{{Key: "age", Value: -1}}, opts.Sort)
	assert.Equal(t, M{"_id": 0, "name": 1}, opts.Projection)
}

func TestFindOptionsExplicitProjection(t *testing.T) {
	projection := M{"name": 1}
	opts := findOptions(projection, QueryOptions{"include": "age", "batchSize": 100})
	assert.Equal(t, projection, opts.Projection)
	assert.Nil(t, opts.Limit)
	assert.Nil(t, opts.Skip)
	assert.Nil(t, opts.Sort)
	assert.Equal(t, int32(100), *opts.BatchSize)
}

func TestAggregateOptions(t *testing.T) {
	opts := aggregateOptions(nil)
	assert.Nil(t, opts.AllowDiskUse)
	assert.Nil(t, opts.BatchSize)

	opts = aggregateOptions(QueryOptions{"allowDiskUse": true, "batchSize": 50})
	require.NotNil(t, opts.AllowDiskUse)
	assert.True(t, *opts.AllowDiskUse)
	assert.Equal(t, int32(50), *opts.BatchSize)
}

func TestWriteConcernFromOptions(t *testing.T) {
	assert.Equal(t, writeconcern.Majority(), writeConcernFromOptions(nil))

	wc := writeConcernFromOptions(QueryOptions{"w": 0})
	assert.Equal(t, 0, wc.W)
	assert.False(t, wc.Acknowledged())

	wc = writeConcernFromOptions(QueryOptions{"w": "2", "wtimeout": 1000, "j": true})
	assert.Equal(t, 2, wc.W)
	assert.Equal(t, time.Second, wc.WTimeout)
	require.NotNil(t, wc.Journal)
	assert.True(t, *wc.Journal)

	wc = writeConcernFromOptions(QueryOptions{"w": "majority"})
	assert.Equal(t, "majority", wc.W)
	assert.Nil(t, wc.Journal)

	wc = writeConcernFromOptions(QueryOptions{"j": false})
	assert.Equal(t, 1, wc.W)
	require.NotNil(t, wc.Journal)
	assert.False(t, *wc.Journal)
}

func TestIndexOptionsFromDocument(t *testing.T) {
	indexOptions, err := indexOptionsFromDocument(nil)
	require.NoError(t, err)
	assert.Nil(t, indexOptions.Name)

	partial := M{"age": M{"$gte": 3}}
	indexOptions, err = indexOptionsFromDocument(M{
		"name":                    "idIndex",
		"unique":                  "false",
		"background":              true,
		"version":                 int64(2),
		"expireAfterSeconds":      60,
		"partialFilterExpression": partial,
	})
	require.NoError(t, err)
	assert.Equal(t, "idIndex", *indexOptions.Name)
	assert.False(t, *indexOptions.Unique)
	assert.True(t, *indexOptions.Background)
	assert.Equal(t, int32(2), *indexOptions.Version)
	assert.Equal(t, int32(60), *indexOptions.ExpireAfterSeconds)
	assert.Equal(t, partial, indexOptions.PartialFilterExpression)
	assert.Nil(t, indexOptions.Sparse)

	_, err = indexOptionsFromDocument(M{"unique": M{"nested": true}})
	assert.Error(t, err)
}

func TestFilterOrEmpty(t *testing.T) {
	var m M
	assert.Equal(t, D{}, filterOrEmpty(nil))
	assert.Equal(t, D{}, filterOrEmpty(m))
	assert.Equal(t, M{"a": 1}, filterOrEmpty(M{"a": 1}))
}

func TestNativeQueryWithoutServer(t *testing.T) {
	native := NewNativeQuery(nil)
	ctx := gctx.New()

	cursor, err := native.Aggregate(ctx, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = native.UpdateMany(ctx, []any{M{"a": 1}, M{"b": 1}}, []any{M{"$set": M{"c": 1}}}, nil)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = native.Insert(ctx, nil, nil)
	assert.Error(t, err)
}
