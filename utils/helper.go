package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
)

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// TrimOrEmpty returns the trimmed string, "" for whitespace-only input.
func TrimOrEmpty(s string) string {
	return strings.TrimSpace(s)
}

var ErrLockNotObtained = errors.New("could not obtain fixture lock")

// FixtureLock serializes transaction processing per (customer, fixture).
// Returns a release func; always call it, including on error paths.
func FixtureLock(ctx context.Context, customerId string, fixtureId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", customerId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("fixtureLock:%s:%d", customerId, fixtureId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for fixture", lockKey, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for fixture", lockKey, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
