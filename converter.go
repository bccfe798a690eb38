package datastore

import (
	"github.com/gogf/gf/v2/util/gconv"
	"go.mongodb.org/mongo-driver/bson"
)

// ComplexTypeConverter maps between the application model T and the stored
// representation O.
type ComplexTypeConverter[T any, O any] interface {
	ToDataModel(value O) (T, error)
	ToStorage(value T) (O, error)
}

// ConverterFunc is a one way converter. ToStorage always fails.
type ConverterFunc[T any, O any] func(value O) (T, error)

func (f ConverterFunc[T, O]) ToDataModel(value O) (T, error) {
	return f(value)
}

func (f ConverterFunc[T, O]) ToStorage(value T) (O, error) {
	var zero O
	return zero, ErrConversionUnsupported
}

// convertValue turns a raw driver value (int32, string, embedded document...)
// into T. Scalars go through gconv, everything else through a bson round trip.
func convertValue[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var t T
	switch p := any(&t).(type) {
	case *int:
		*p = gconv.Int(v)
	case *int32:
		*p = gconv.Int32(v)
	case *int64:
		*p = gconv.Int64(v)
	case *float32:
		*p = gconv.Float32(v)
	case *float64:
		*p = gconv.Float64(v)
	case *string:
		*p = gconv.String(v)
	case *bool:
		*p = gconv.Bool(v)
	default:
		raw, err := bson.Marshal(M{"v": v})
		if err != nil {
			return t, err
		}
		var holder struct {
			V T `bson:"v"`
		}
		if err = bson.Unmarshal(raw, &holder); err != nil {
			return t, err
		}
		t = holder.V
	}
	return t, nil
}
