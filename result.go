package datastore

import (
	"time"

	"github.com/google/uuid"
)

// QueryResult is the envelope returned by every Collection operation.
// NumResults always equals len(Result).
type QueryResult[T any] struct {
	ID              string        `json:"id"`
	DbTime          time.Duration `json:"dbTime"`
	NumResults      int           `json:"numResults"`
	NumTotalResults int64         `json:"numTotalResults"`
	WarningMsg      string        `json:"warningMsg,omitempty"`
	ErrorMsg        string        `json:"errorMsg,omitempty"`
	Result          []T           `json:"result"`
}

// newQueryResult closes the timing window opened at start. A negative
// numTotalResults means "same as the number of returned items".
func newQueryResult[T any](start time.Time, list []T, numTotalResults int64) *QueryResult[T] {
	if list == nil {
		list = []T{}
	}
	if numTotalResults < 0 {
		numTotalResults = int64(len(list))
	}
	return &QueryResult[T]{
		ID:              uuid.NewString(),
		DbTime:          time.Since(start),
		NumResults:      len(list),
		NumTotalResults: numTotalResults,
		Result:          list,
	}
}

// First returns the first item, or the zero value for an empty result.
func (r *QueryResult[T]) First() T {
	var zero T
	if r == nil || len(r.Result) == 0 {
		return zero
	}
	return r.Result[0]
}

func (r *QueryResult[T]) IsEmpty() bool {
	return r == nil || len(r.Result) == 0
}

func (r *QueryResult[T]) HasError() bool {
	return r != nil && r.ErrorMsg != ""
}
