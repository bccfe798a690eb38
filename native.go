package datastore

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/text/gstr"
	"github.com/gogf/gf/v2/util/gconv"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const defaultBatchSize = 20

// NativeQuery translates QueryOptions into driver calls on one collection.
// It does no timing and returns driver results untouched.
type NativeQuery struct {
	collection *mongo.Collection
}

func NewNativeQuery(collection *mongo.Collection) *NativeQuery {
	return &NativeQuery{collection: collection}
}

func (n *NativeQuery) Collection() *mongo.Collection {
	return n.collection
}

func (n *NativeQuery) Count(ctx context.Context, query any, opts QueryOptions) (int64, error) {
	countOptions := options.Count()
	if maxTime := opts.GetMillis("maxTimeMS"); maxTime > 0 {
		countOptions.SetMaxTime(maxTime)
	}
	return n.collection.CountDocuments(ctx, filterOrEmpty(query), countOptions)
}

func (n *NativeQuery) Distinct(ctx context.Context, key string, query any) ([]any, error) {
	return n.collection.Distinct(ctx, key, filterOrEmpty(query))
}

func (n *NativeQuery) Find(ctx context.Context, query any, projection any, opts QueryOptions) (*mongo.Cursor, error) {
	return n.collection.Find(ctx, filterOrEmpty(query), findOptions(projection, opts))
}

// Aggregate returns a nil cursor without calling the server for an empty pipeline.
func (n *NativeQuery) Aggregate(ctx context.Context, pipeline []any, opts QueryOptions) (*mongo.Cursor, error) {
	if len(pipeline) == 0 {
		return nil, nil
	}
	return n.collection.Aggregate(ctx, pipeline, aggregateOptions(opts))
}

// Insert writes doc with the write concern read from "w", "wtimeout" and "j".
// A missing _id is generated and stored back into doc.
func (n *NativeQuery) Insert(ctx context.Context, doc M, opts QueryOptions) (*mongo.InsertOneResult, error) {
	if doc == nil {
		return nil, gerror.New("insert document must not be nil")
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	collection, err := n.withWriteConcern(opts)
	if err != nil {
		return nil, err
	}
	result, err := collection.InsertOne(ctx, doc)
	if isUnacknowledged(err) {
		return &mongo.InsertOneResult{InsertedID: doc["_id"]}, err
	}
	return result, err
}

// InsertMany inserts docs through a single bulk write.
func (n *NativeQuery) InsertMany(ctx context.Context, docs []M, opts QueryOptions) (*mongo.BulkWriteResult, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewInsertOneModel().SetDocument(doc))
	}
	return n.bulkWrite(ctx, models, opts)
}

func (n *NativeQuery) Update(ctx context.Context, query any, update any, upsert, multi bool) (*mongo.UpdateResult, error) {
	updateOptions := options.Update().SetUpsert(upsert)
	if multi {
		return n.collection.UpdateMany(ctx, filterOrEmpty(query), update, updateOptions)
	}
	return n.collection.UpdateOne(ctx, filterOrEmpty(query), update, updateOptions)
}

// UpdateMany pairs queries[i] with updates[i] in one bulk write.
func (n *NativeQuery) UpdateMany(ctx context.Context, queries []any, updates []any, opts QueryOptions) (*mongo.BulkWriteResult, error) {
	if len(queries) != len(updates) {
		return nil, ErrSizeMismatch
	}
	var (
		upsert = opts.GetBool("upsert")
		multi  = opts.GetBool("multi")
		models = make([]mongo.WriteModel, 0, len(queries))
	)
	for i, query := range queries {
		if multi {
			models = append(models, mongo.NewUpdateManyModel().SetFilter(filterOrEmpty(query)).SetUpdate(updates[i]).SetUpsert(upsert))
		} else {
			models = append(models, mongo.NewUpdateOneModel().SetFilter(filterOrEmpty(query)).SetUpdate(updates[i]).SetUpsert(upsert))
		}
	}
	return n.bulkWrite(ctx, models, opts)
}

// Remove deletes every match unless "multi" is explicitly false.
func (n *NativeQuery) Remove(ctx context.Context, query any, opts QueryOptions) (*mongo.DeleteResult, error) {
	if opts.ContainsKey("multi") && !opts.GetBool("multi") {
		return n.collection.DeleteOne(ctx, filterOrEmpty(query))
	}
	return n.collection.DeleteMany(ctx, filterOrEmpty(query))
}

// RemoveMany deletes one document per query, or all matches when "multi" is set.
func (n *NativeQuery) RemoveMany(ctx context.Context, queries []any, opts QueryOptions) (*mongo.BulkWriteResult, error) {
	multi := opts.GetBool("multi")
	models := make([]mongo.WriteModel, 0, len(queries))
	for _, query := range queries {
		if multi {
			models = append(models, mongo.NewDeleteManyModel().SetFilter(filterOrEmpty(query)))
		} else {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(filterOrEmpty(query)))
		}
	}
	return n.bulkWrite(ctx, models, opts)
}

// FindAndModify deletes the first match when "remove" is set, otherwise
// updates it. "returnNew" selects the post image and "upsert" inserts on miss.
func (n *NativeQuery) FindAndModify(ctx context.Context, query any, projection any, sort any, update any, opts QueryOptions) *mongo.SingleResult {
	if isNull(projection) && opts != nil {
		projection = projectionFromOptions(opts)
	}
	if isNull(sort) {
		sort = opts.Get("sort")
	}
	sort = sortFromOption(sort)
	if opts.GetBool("remove") {
		deleteOptions := options.FindOneAndDelete()
		if !isNull(projection) {
			deleteOptions.SetProjection(projection)
		}
		if !isNull(sort) {
			deleteOptions.SetSort(sort)
		}
		return n.collection.FindOneAndDelete(ctx, filterOrEmpty(query), deleteOptions)
	}
	returnDocument := options.Before
	if opts.GetBool("returnNew") {
		returnDocument = options.After
	}
	updateOptions := options.FindOneAndUpdate().
		SetReturnDocument(returnDocument).
		SetUpsert(opts.GetBool("upsert"))
	if !isNull(projection) {
		updateOptions.SetProjection(projection)
	}
	if !isNull(sort) {
		updateOptions.SetSort(sort)
	}
	return n.collection.FindOneAndUpdate(ctx, filterOrEmpty(query), update, updateOptions)
}

// CreateIndex returns the name of the created index.
func (n *NativeQuery) CreateIndex(ctx context.Context, keys any, indexOptions M) (string, error) {
	idxOptions, err := indexOptionsFromDocument(indexOptions)
	if err != nil {
		return "", err
	}
	return n.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: idxOptions,
	})
}

// DropIndex drops by index name when keys is a string, by key pattern otherwise.
func (n *NativeQuery) DropIndex(ctx context.Context, keys any) error {
	if name, ok := keys.(string); ok {
		_, err := n.collection.Indexes().DropOne(ctx, name)
		return err
	}
	command := D{
		{Key: "dropIndexes", Value: n.collection.Name()},
		{Key: "index", Value: keys},
	}
	return n.collection.Database().RunCommand(ctx, command).Err()
}

func (n *NativeQuery) ListIndexes(ctx context.Context) ([]M, error) {
	cursor, err := n.collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []M
	if err = cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (n *NativeQuery) bulkWrite(ctx context.Context, models []mongo.WriteModel, opts QueryOptions) (*mongo.BulkWriteResult, error) {
	if len(models) == 0 {
		return &mongo.BulkWriteResult{}, nil
	}
	collection, err := n.withWriteConcern(opts)
	if err != nil {
		return nil, err
	}
	bulkOptions := options.BulkWrite().SetOrdered(opts.GetBool("ordered", true))
	result, err := collection.BulkWrite(ctx, models, bulkOptions)
	if result == nil && isUnacknowledged(err) {
		result = &mongo.BulkWriteResult{}
	}
	return result, err
}

func (n *NativeQuery) withWriteConcern(opts QueryOptions) (*mongo.Collection, error) {
	return n.collection.Clone(options.Collection().SetWriteConcern(writeConcernFromOptions(opts)))
}

func findOptions(projection any, opts QueryOptions) *options.FindOptions {
	findOptions := options.Find()
	if isNull(projection) {
		projection = projectionFromOptions(opts)
	}
	findOptions.SetProjection(projection)
	if limit := opts.GetInt64("limit"); limit > 0 {
		findOptions.SetLimit(limit)
	}
	if skip := opts.GetInt64("skip"); skip > 0 {
		findOptions.SetSkip(skip)
	}
	if sort := sortFromOption(opts.Get("sort")); sort != nil {
		findOptions.SetSort(sort)
	}
	findOptions.SetBatchSize(int32(opts.GetInt("batchSize", defaultBatchSize)))
	if maxTime := opts.GetMillis("maxTimeMS"); maxTime > 0 {
		findOptions.SetMaxTime(maxTime)
	}
	return findOptions
}

func aggregateOptions(opts QueryOptions) *options.AggregateOptions {
	aggregateOptions := options.Aggregate()
	if opts.ContainsKey("allowDiskUse") {
		aggregateOptions.SetAllowDiskUse(opts.GetBool("allowDiskUse"))
	}
	if batchSize := opts.GetInt("batchSize"); batchSize > 0 {
		aggregateOptions.SetBatchSize(int32(batchSize))
	}
	if maxTime := opts.GetMillis("maxTimeMS"); maxTime > 0 {
		aggregateOptions.SetMaxTime(maxTime)
	}
	return aggregateOptions
}

// projectionFromOptions always hides _id, then applies "include" or, when
// no include list is given, "exclude".
func projectionFromOptions(opts QueryOptions) M {
	projection := M{"_id": 0}
	if include := opts.GetStringList("include", ","); len(include) > 0 {
		for _, field := range include {
			projection[field] = 1
		}
		return projection
	}
	for _, field := range opts.GetStringList("exclude", ",") {
		projection[field] = 0
	}
	return projection
}

// sortFromOption accepts a bson document, any string keyed map, or a list of
// fields where a "-" prefix means descending.
func sortFromOption(v any) any {
	if isNull(v) {
		return nil
	}
	switch n := v.(type) {
	case D, M:
		return n
	case map[string]any:
		return M(n)
	}
	if reflect.ValueOf(v).Kind() == reflect.Map {
		if m := gconv.Map(v); len(m) > 0 {
			return M(m)
		}
		return nil
	}
	var sort D
	if s, ok := v.(string); ok {
		sort = convStrings2MongoSort(gstr.SplitAndTrim(s, ","))
	} else {
		sort = convStrings2MongoSort(gconv.Strings(v))
	}
	if len(sort) == 0 {
		return nil
	}
	return sort
}

func convStrings2MongoSort(arr []string) D {
	result := D{}
	for _, item := range arr {
		item = strings.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '-' {
			result = append(result, primitive.E{Key: strings.TrimLeft(item, "-"), Value: -1})
		} else {
			result = append(result, primitive.E{Key: strings.TrimLeft(item, "+"), Value: 1})
		}
	}
	return result
}

// writeConcernFromOptions defaults to majority when none of "w", "wtimeout"
// or "j" is present. "w" may be a number or a tag such as "majority".
func writeConcernFromOptions(opts QueryOptions) *writeconcern.WriteConcern {
	if !opts.ContainsKey("w") && !opts.ContainsKey("wtimeout") && !opts.ContainsKey("j") {
		return writeconcern.Majority()
	}
	wc := &writeconcern.WriteConcern{W: 1}
	switch w := opts.Get("w").(type) {
	case nil:
	case string:
		if n := gconv.Int(w); n > 0 || w == "0" {
			wc.W = n
		} else {
			wc.W = w
		}
	default:
		wc.W = gconv.Int(w)
	}
	if timeout := opts.GetMillis("wtimeout"); timeout > 0 {
		wc.WTimeout = timeout
	}
	if opts.ContainsKey("j") {
		journal := opts.GetBool("j")
		wc.Journal = &journal
	}
	return wc
}

type indexSpec struct {
	Name                    string `mapstructure:"name"`
	Unique                  *bool  `mapstructure:"unique"`
	Background              *bool  `mapstructure:"background"`
	Sparse                  *bool  `mapstructure:"sparse"`
	Version                 *int32 `mapstructure:"version"`
	ExpireAfterSeconds      *int32 `mapstructure:"expireAfterSeconds"`
	PartialFilterExpression any    `mapstructure:"partialFilterExpression"`
}

func indexOptionsFromDocument(doc M) (*options.IndexOptions, error) {
	indexOptions := options.Index()
	if len(doc) == 0 {
		return indexOptions, nil
	}
	var spec indexSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &spec,
	})
	if err != nil {
		return nil, err
	}
	if err = decoder.Decode(map[string]any(doc)); err != nil {
		return nil, gerror.Wrap(err, "invalid index options")
	}
	if spec.Name != "" {
		indexOptions.SetName(spec.Name)
	}
	if spec.Unique != nil {
		indexOptions.SetUnique(*spec.Unique)
	}
	if spec.Background != nil {
		indexOptions.SetBackground(*spec.Background)
	}
	if spec.Sparse != nil {
		indexOptions.SetSparse(*spec.Sparse)
	}
	if spec.Version != nil {
		indexOptions.SetVersion(*spec.Version)
	}
	if spec.ExpireAfterSeconds != nil {
		indexOptions.SetExpireAfterSeconds(*spec.ExpireAfterSeconds)
	}
	if !isNull(spec.PartialFilterExpression) {
		indexOptions.SetPartialFilterExpression(spec.PartialFilterExpression)
	}
	return indexOptions, nil
}

func filterOrEmpty(query any) any {
	if isNull(query) {
		return D{}
	}
	return query
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
