package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewQueryResult(t *testing.T) {
	start := time.Now()
	result := newQueryResult(start, []string{"a", "b"}, -1)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 2, result.NumResults)
	assert.Equal(t, int64(2), result.NumTotalResults)
	assert.Equal(t, "a", result.First())
	assert.GreaterOrEqual(t, result.DbTime, time.Duration(0))

	result = newQueryResult(start, []string{"a"}, 10)
	assert.Equal(t, 1, result.NumResults)
	assert.Equal(t, int64(10), result.NumTotalResults)
}

func TestQueryResultEmpty(t *testing.T) {
	result := newQueryResult[int64](time.Now(), nil, -1)
	assert.NotNil(t, result.Result)
	assert.Equal(t, 0, result.NumResults)
	assert.Equal(t, len(result.Result), result.NumResults)
	assert.Equal(t, int64(0), result.First())
	assert.True(t, result.IsEmpty())
	assert.False(t, result.HasError())

	var missing *QueryResult[M]
	assert.Nil(t, missing.First())
	assert.True(t, missing.IsEmpty())
}

func TestQueryResultIDsDiffer(t *testing.T) {
	a := newQueryResult[int](time.Now(), nil, -1)
	b := newQueryResult[int](time.Now(), nil, -1)
	assert.NotEqual(t, a.ID, b.ID)
}
