package datastore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/os/glog"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection times every NativeQuery call and wraps its outcome in a
// QueryResult. It is safe for concurrent use.
type Collection struct {
	name     string
	database string
	native   *NativeQuery
	metrics  *Metrics
	logger   *glog.Logger

	mu     sync.RWMutex
	writer QueryResultWriter
}

func newCollection(native *NativeQuery, database, name string, metrics *Metrics, logger *glog.Logger) *Collection {
	if logger == nil {
		logger = glog.DefaultLogger()
	}
	return &Collection{
		name:     name,
		database: database,
		native:   native,
		metrics:  metrics,
		logger:   logger,
	}
}

func (c *Collection) Name() string {
	return c.name
}

// Native exposes the untimed query layer, e.g. for fixtures.
func (c *Collection) Native() *NativeQuery {
	return c.native
}

func (c *Collection) QueryResultWriter() QueryResultWriter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writer
}

// SetQueryResultWriter attaches w to this (shared) collection. Pass nil to
// go back to collecting results.
func (c *Collection) SetQueryResultWriter(w QueryResultWriter) {
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
}

// WithWriter returns a copy of the collection streaming to w, leaving the
// cached collection untouched.
func (c *Collection) WithWriter(w QueryResultWriter) *Collection {
	clone := newCollection(c.native, c.database, c.name, c.metrics, c.logger)
	clone.writer = w
	return clone
}

func (c *Collection) Count(ctx context.Context) (*QueryResult[int64], error) {
	return c.CountQuery(ctx, nil, nil)
}

func (c *Collection) CountQuery(ctx context.Context, query any, options QueryOptions) (*QueryResult[int64], error) {
	start := time.Now()
	count, err := c.native.Count(ctx, query, options)
	if err != nil {
		return nil, c.failQuery(ctx, "count", start, err)
	}
	return endQuery(ctx, c, "count", start, []int64{count}, -1), nil
}

func (c *Collection) Distinct(ctx context.Context, key string, query any) (*QueryResult[any], error) {
	return DistinctAs[any](ctx, c, key, query)
}

// DistinctAs converts every distinct value of key into T.
func DistinctAs[T any](ctx context.Context, c *Collection, key string, query any) (*QueryResult[T], error) {
	return DistinctConverted[T, T](ctx, c, key, query, ConverterFunc[T, T](func(value T) (T, error) {
		return value, nil
	}))
}

// DistinctConverted reads distinct values as O and maps them through converter.
func DistinctConverted[T any, O any](ctx context.Context, c *Collection, key string, query any, converter ComplexTypeConverter[T, O]) (*QueryResult[T], error) {
	start := time.Now()
	values, err := c.native.Distinct(ctx, key, query)
	if err != nil {
		return nil, c.failQuery(ctx, "distinct", start, err)
	}
	list := make([]T, 0, len(values))
	for _, value := range values {
		stored, err := convertValue[O](value)
		if err != nil {
			return nil, c.failQuery(ctx, "distinct", start, err)
		}
		item, err := converter.ToDataModel(stored)
		if err != nil {
			return nil, c.failQuery(ctx, "distinct", start, err)
		}
		list = append(list, item)
	}
	return endQuery(ctx, c, "distinct", start, list, -1), nil
}

func (c *Collection) Find(ctx context.Context, query any, projection any, options QueryOptions) (*QueryResult[M], error) {
	return FindAs[M](ctx, c, query, projection, options)
}

// FindAs decodes every document into T with the driver's bson codecs.
func FindAs[T any](ctx context.Context, c *Collection, query any, projection any, options QueryOptions) (*QueryResult[T], error) {
	return find(ctx, c, query, projection, options, func(cursor *mongo.Cursor) (T, error) {
		var item T
		err := cursor.Decode(&item)
		return item, err
	})
}

// FindConverted decodes every document as M and maps it through converter.
func FindConverted[T any](ctx context.Context, c *Collection, query any, projection any, converter ComplexTypeConverter[T, M], options QueryOptions) (*QueryResult[T], error) {
	return find(ctx, c, query, projection, options, func(cursor *mongo.Cursor) (T, error) {
		var doc M
		if err := cursor.Decode(&doc); err != nil {
			var zero T
			return zero, err
		}
		return converter.ToDataModel(doc)
	})
}

// FindMany runs one find per query and returns the envelopes in query order.
func (c *Collection) FindMany(ctx context.Context, queries []any, projection any, options QueryOptions) ([]*QueryResult[M], error) {
	results := make([]*QueryResult[M], 0, len(queries))
	for _, query := range queries {
		result, err := c.Find(ctx, query, projection, options)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func find[T any](ctx context.Context, c *Collection, query any, projection any, options QueryOptions, decode func(*mongo.Cursor) (T, error)) (*QueryResult[T], error) {
	start := time.Now()
	cursor, err := c.native.Find(ctx, query, projection, options)
	if err != nil {
		return nil, c.failQuery(ctx, "find", start, err)
	}
	defer cursor.Close(ctx)

	list, numTotalResults, writeErr, err := consume(ctx, c.QueryResultWriter(), cursor, decode)
	if err != nil {
		return nil, c.failQuery(ctx, "find", start, err)
	}
	// a failed writer keeps the number of documents actually written
	if writeErr == nil && options.GetBool("count") {
		numTotalResults, err = c.native.Count(ctx, query, options)
		if err != nil {
			return nil, c.failQuery(ctx, "find", start, err)
		}
	}
	result := endQuery(ctx, c, "find", start, list, numTotalResults)
	c.attachWriterError(ctx, result.ID, &result.ErrorMsg, writeErr)
	return result, nil
}

// Aggregate runs pipeline. An empty pipeline returns an empty result.
func (c *Collection) Aggregate(ctx context.Context, pipeline []any, options QueryOptions) (*QueryResult[M], error) {
	start := time.Now()
	cursor, err := c.native.Aggregate(ctx, pipeline, options)
	if err != nil {
		return nil, c.failQuery(ctx, "aggregate", start, err)
	}
	if cursor == nil {
		return endQuery[M](ctx, c, "aggregate", start, nil, -1), nil
	}
	defer cursor.Close(ctx)

	list, numTotalResults, writeErr, err := consume(ctx, c.QueryResultWriter(), cursor, func(cursor *mongo.Cursor) (M, error) {
		var doc M
		err := cursor.Decode(&doc)
		return doc, err
	})
	if err != nil {
		return nil, c.failQuery(ctx, "aggregate", start, err)
	}
	result := endQuery(ctx, c, "aggregate", start, list, numTotalResults)
	c.attachWriterError(ctx, result.ID, &result.ErrorMsg, writeErr)
	return result, nil
}

func (c *Collection) Insert(ctx context.Context, doc M, options QueryOptions) (*QueryResult[*mongo.InsertOneResult], error) {
	start := time.Now()
	result, err := c.native.Insert(ctx, doc, options)
	return writeResult(ctx, c, "insert", start, result, err)
}

func (c *Collection) InsertMany(ctx context.Context, docs []M, options QueryOptions) (*QueryResult[*mongo.BulkWriteResult], error) {
	start := time.Now()
	result, err := c.native.InsertMany(ctx, docs, options)
	return writeResult(ctx, c, "insertMany", start, result, err)
}

// Update reads "upsert" and "multi" from options.
func (c *Collection) Update(ctx context.Context, query any, update any, options QueryOptions) (*QueryResult[*mongo.UpdateResult], error) {
	start := time.Now()
	result, err := c.native.Update(ctx, query, update, options.GetBool("upsert"), options.GetBool("multi"))
	return writeResult(ctx, c, "update", start, result, err)
}

func (c *Collection) UpdateMany(ctx context.Context, queries []any, updates []any, options QueryOptions) (*QueryResult[*mongo.BulkWriteResult], error) {
	start := time.Now()
	result, err := c.native.UpdateMany(ctx, queries, updates, options)
	return writeResult(ctx, c, "updateMany", start, result, err)
}

func (c *Collection) Remove(ctx context.Context, query any, options QueryOptions) (*QueryResult[*mongo.DeleteResult], error) {
	start := time.Now()
	result, err := c.native.Remove(ctx, query, options)
	return writeResult(ctx, c, "remove", start, result, err)
}

func (c *Collection) RemoveMany(ctx context.Context, queries []any, options QueryOptions) (*QueryResult[*mongo.BulkWriteResult], error) {
	start := time.Now()
	result, err := c.native.RemoveMany(ctx, queries, options)
	return writeResult(ctx, c, "removeMany", start, result, err)
}

func (c *Collection) FindAndModify(ctx context.Context, query any, projection any, sort any, update any, options QueryOptions) (*QueryResult[M], error) {
	return FindAndModifyAs[M](ctx, c, query, projection, sort, update, options)
}

// FindAndModifyAs decodes the matched document into T. No match gives an
// empty result.
func FindAndModifyAs[T any](ctx context.Context, c *Collection, query any, projection any, sort any, update any, options QueryOptions) (*QueryResult[T], error) {
	start := time.Now()
	var item T
	err := c.native.FindAndModify(ctx, query, projection, sort, update, options).Decode(&item)
	if isNoDocuments(err) {
		return endQuery[T](ctx, c, "findAndModify", start, nil, -1), nil
	}
	if err != nil {
		return nil, c.failQuery(ctx, "findAndModify", start, err)
	}
	return endQuery(ctx, c, "findAndModify", start, []T{item}, -1), nil
}

// CreateIndex returns the created index name as the only result.
func (c *Collection) CreateIndex(ctx context.Context, keys any, indexOptions M) (*QueryResult[string], error) {
	start := time.Now()
	name, err := c.native.CreateIndex(ctx, keys, indexOptions)
	if err != nil {
		return nil, c.failQuery(ctx, "createIndex", start, err)
	}
	return endQuery(ctx, c, "createIndex", start, []string{name}, -1), nil
}

func (c *Collection) DropIndex(ctx context.Context, keys any) (*QueryResult[any], error) {
	start := time.Now()
	if err := c.native.DropIndex(ctx, keys); err != nil {
		return nil, c.failQuery(ctx, "dropIndex", start, err)
	}
	return endQuery[any](ctx, c, "dropIndex", start, nil, -1), nil
}

func (c *Collection) GetIndex(ctx context.Context) (*QueryResult[M], error) {
	start := time.Now()
	indexes, err := c.native.ListIndexes(ctx)
	if err != nil {
		return nil, c.failQuery(ctx, "getIndex", start, err)
	}
	return endQuery(ctx, c, "getIndex", start, indexes, -1), nil
}

func endQuery[T any](ctx context.Context, c *Collection, operation string, start time.Time, list []T, numTotalResults int64) *QueryResult[T] {
	result := newQueryResult(start, list, numTotalResults)
	c.metrics.observe(c.database, c.name, operation, result.DbTime, result.NumTotalResults)
	c.logger.Debugf(ctx, "[%s] %s.%s %s: %d/%d results in %s",
		result.ID, c.database, c.name, operation, result.NumResults, result.NumTotalResults, result.DbTime)
	return result
}

func (c *Collection) failQuery(ctx context.Context, operation string, start time.Time, err error) error {
	c.metrics.failed(c.database, c.name, operation, time.Since(start))
	c.logger.Debugf(ctx, "%s.%s %s failed: %v", c.database, c.name, operation, err)
	return gerror.Wrapf(err, "%s on %s.%s", operation, c.database, c.name)
}

func (c *Collection) attachWriterError(ctx context.Context, id string, errorMsg *string, writeErr error) {
	if writeErr == nil {
		return
	}
	*errorMsg = writeErr.Error()
	c.logger.Warningf(ctx, "[%s] %s.%s result writer failed: %v", id, c.database, c.name, writeErr)
}

func writeResult[T any](ctx context.Context, c *Collection, operation string, start time.Time, value T, err error) (*QueryResult[T], error) {
	if err != nil && !isUnacknowledged(err) {
		return nil, c.failQuery(ctx, operation, start, err)
	}
	result := endQuery(ctx, c, operation, start, []T{value}, -1)
	if err != nil {
		result.WarningMsg = err.Error()
	}
	return result, nil
}

// consume either collects the cursor through decode or, when writer is set,
// streams raw documents into it. Writer failures come back as writeErr and
// never as err.
func consume[T any](ctx context.Context, writer QueryResultWriter, cursor *mongo.Cursor, decode func(*mongo.Cursor) (T, error)) (list []T, numTotalResults int64, writeErr error, err error) {
	if writer == nil {
		for cursor.Next(ctx) {
			item, err := decode(cursor)
			if err != nil {
				return nil, 0, nil, err
			}
			list = append(list, item)
		}
		if err = cursor.Err(); err != nil {
			return nil, 0, nil, err
		}
		return list, int64(len(list)), nil, nil
	}

	written, err := streamTo(ctx, writer, cursor)
	var we *writerError
	if errors.As(err, &we) {
		return nil, written, we.err, nil
	}
	return nil, written, nil, err
}

type writerError struct {
	err error
}

func (e *writerError) Error() string {
	return e.err.Error()
}

func (e *writerError) Unwrap() error {
	return e.err
}

func streamTo(ctx context.Context, writer QueryResultWriter, cursor *mongo.Cursor) (int64, error) {
	if err := writer.Open(); err != nil {
		return 0, &writerError{err: err}
	}
	var written int64
	for cursor.Next(ctx) {
		var doc M
		if err := cursor.Decode(&doc); err != nil {
			_ = writer.Close()
			return written, err
		}
		if err := writer.Write(doc); err != nil {
			_ = writer.Close()
			return written, &writerError{err: err}
		}
		written++
	}
	if err := cursor.Err(); err != nil {
		_ = writer.Close()
		return written, err
	}
	if err := writer.Close(); err != nil {
		return written, &writerError{err: err}
	}
	return written, nil
}
