package utils

import (
	"context"
	"errors"
	"reflect"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
)

// check if id exists, using customer_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, customerId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, customerId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, customerId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, customerId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, customerId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records, using WHERE customer_id = ? AND $condition
// customer_id can be blank for admin user
func ResourceCountWhere[T any](ctx context.Context, customerId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if customerId != "" {
		dbCtx.Where("customer_id = ?", customerId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FetchModel loads one tenant-scoped row by primary key.
func FetchModel[T any](ctx context.Context, customerId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("customer_id = ?", customerId)
	// preloading
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
