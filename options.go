package datastore

import (
	"reflect"
	"strings"
	"time"

	"github.com/gogf/gf/v2/text/gstr"
	"github.com/gogf/gf/v2/util/gconv"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

type M = bson.M
type D = bson.D
type A = bson.A

// QueryOptions is the loosely typed options bag every operation reads its
// own keys from. Reads on a nil QueryOptions are safe.
type QueryOptions map[string]any

func NewQueryOptions() QueryOptions {
	return QueryOptions{}
}

// Add sets key and returns the options so calls can be chained.
// A nil receiver allocates a new map.
func (q QueryOptions) Add(key string, value any) QueryOptions {
	if q == nil {
		q = QueryOptions{}
	}
	q[key] = value
	return q
}

func (q QueryOptions) ContainsKey(key string) bool {
	_, ok := q[key]
	return ok
}

func (q QueryOptions) Get(key string) any {
	return q[key]
}

func (q QueryOptions) GetInt(key string, def ...int) int {
	v, ok := q[key]
	if !ok || isNull(v) {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	return gconv.Int(v)
}

func (q QueryOptions) GetInt64(key string, def ...int64) int64 {
	v, ok := q[key]
	if !ok || isNull(v) {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	return gconv.Int64(v)
}

func (q QueryOptions) GetBool(key string, def ...bool) bool {
	v, ok := q[key]
	if !ok || isNull(v) {
		if len(def) > 0 {
			return def[0]
		}
		return false
	}
	return gconv.Bool(v)
}

func (q QueryOptions) GetString(key string, def ...string) string {
	v, ok := q[key]
	if !ok || isNull(v) {
		if len(def) > 0 {
			return def[0]
		}
		return ""
	}
	return gconv.String(v)
}

// GetMillis reads an integer number of milliseconds as a duration.
func (q QueryOptions) GetMillis(key string) time.Duration {
	return time.Duration(q.GetInt64(key)) * time.Millisecond
}

// GetStringList accepts either a sep separated string or a list value.
// Blank entries are dropped.
func (q QueryOptions) GetStringList(key string, sep string) []string {
	v, ok := q[key]
	if !ok || isNull(v) {
		return nil
	}
	if s, ok := v.(string); ok {
		return gstr.SplitAndTrim(s, sep)
	}
	list := lo.Map(gconv.Strings(v), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Filter(list, func(item string, _ int) bool {
		return item != ""
	})
}

func (q QueryOptions) Clone() QueryOptions {
	if q == nil {
		return nil
	}
	result := make(QueryOptions, len(q))
	for k, v := range q {
		result[k] = v
	}
	return result
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
