package datastore

import (
	"errors"

	"github.com/gogf/gf/v2/errors/gcode"
	"github.com/gogf/gf/v2/errors/gerror"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrSizeMismatch          = gerror.NewCode(gcode.CodeInvalidParameter, "queries and updates must have the same size")
	ErrStoreClosed           = gerror.NewCode(gcode.CodeInvalidOperation, "datastore is closed")
	ErrConversionUnsupported = gerror.NewCode(gcode.CodeNotSupported, "conversion not supported")
)

// IsDuplicateKey reports whether err (possibly wrapped) is a duplicate key
// write error, including inside bulk write errors.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func isUnacknowledged(err error) bool {
	return errors.Is(err, mongo.ErrUnacknowledgedWrite)
}
