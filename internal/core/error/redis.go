package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified Error type with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		e := New(err, http.StatusNotFound, RedisNotFoundMessage)
		e.Kind = KindPersistence
		return e
	}
	if errors.Is(err, redis.TxFailedErr) {
		e := New(ErrCheckpointConflict, http.StatusConflict, RedisErrorMessage)
		e.Kind = KindPersistence
		return e
	}

	return WithKind(KindPersistence, err, RedisErrorMessage)
}
