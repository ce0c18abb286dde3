package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"bitbucket.org/mmdatafocus/fixtures_backend/utils"
)

// Fixture is the jig master record. Its definition is owned by the
// master-data surface; the transaction engine owns the aggregate counters.
type Fixture struct {
	ID            int           `gorm:"primary_key" json:"id"`
	CustomerId    string        `gorm:"size:64;index;not null" json:"customer_id"`
	Name          string        `gorm:"size:100;not null" json:"name" binding:"required"`
	LifecycleMode LifecycleMode `gorm:"type:enum('S','F');default:S;not null" json:"lifecycle_mode"`
	IsScrapped    *bool         `gorm:"not null;default:false" json:"is_scrapped"`
	InStockQty    int           `gorm:"not null;default:0" json:"in_stock_qty"`
	DeployedQty   int           `gorm:"not null;default:0" json:"deployed_qty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewFixture struct {
	Name          string        `json:"name" binding:"required"`
	LifecycleMode LifecycleMode `json:"lifecycle_mode"`
}

func fixtureCacheKey(customerId string, id int) string {
	return "fixture:" + customerId + ":" + strconv.Itoa(id)
}

// validate input for both create & update. (id = 0 for create)
func (input *NewFixture) validate(ctx context.Context, customerId string, id int) error {
	if err := utils.ValidateUnique[Fixture](ctx, customerId, "name", input.Name, id); err != nil {
		return err
	}
	switch input.LifecycleMode {
	case "", LifecycleModeSerial, LifecycleModeFixture:
	default:
		return errors.New("invalid lifecycle mode")
	}
	return nil
}

func CreateFixture(ctx context.Context, input *NewFixture) (*Fixture, error) {

	customerId, ok := utils.GetCustomerIdFromContext(ctx)
	if !ok || customerId == "" {
		return nil, errors.New("customer id is required")
	}

	if err := input.validate(ctx, customerId, 0); err != nil {
		return nil, err
	}

	mode := input.LifecycleMode
	if mode == "" {
		mode = LifecycleModeSerial
	}

	fixture := Fixture{
		CustomerId:    customerId,
		Name:          input.Name,
		LifecycleMode: mode,
		IsScrapped:    utils.NewFalse(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&fixture).Error
	if err != nil {
		return nil, err
	}
	return &fixture, nil
}

func UpdateFixture(ctx context.Context, id int, input *NewFixture) (*Fixture, error) {

	customerId, ok := utils.GetCustomerIdFromContext(ctx)
	if !ok || customerId == "" {
		return nil, errors.New("customer id is required")
	}

	if err := utils.ValidateResourceId[Fixture](ctx, customerId, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, customerId, id); err != nil {
		return nil, err
	}

	fixture, err := utils.FetchModel[Fixture](ctx, customerId, id)
	if err != nil {
		return nil, err
	}

	// lifecycle_mode is owned by the engine; the master surface only renames.
	fixture.Name = input.Name
	db := config.GetDB()
	err = db.WithContext(ctx).Model(fixture).Update("name", input.Name).Error
	if err != nil {
		return nil, err
	}
	InvalidateFixtureCache(customerId, id)
	return fixture, nil
}

// ScrapFixture retires the jig. Terminal: a scrapped fixture rejects every
// future lot; its serial records and ledger history stay readable.
func ScrapFixture(ctx context.Context, id int) (*Fixture, error) {

	customerId, ok := utils.GetCustomerIdFromContext(ctx)
	if !ok || customerId == "" {
		return nil, errors.New("customer id is required")
	}

	fixture, err := utils.FetchModel[Fixture](ctx, customerId, id)
	if err != nil {
		return nil, err
	}

	fixture.IsScrapped = utils.NewTrue()
	db := config.GetDB()
	err = db.WithContext(ctx).Model(fixture).Update("is_scrapped", true).Error
	if err != nil {
		return nil, err
	}
	InvalidateFixtureCache(customerId, id)
	return fixture, nil
}

// GetFixtureById serves master-surface reads through the redis cache.
// Engine code must NOT use this: the kernel reads the row FOR UPDATE.
func GetFixtureById(ctx context.Context, customerId string, id int) (*Fixture, error) {
	key := fixtureCacheKey(customerId, id)

	var fixture Fixture
	if exists, err := config.GetRedisObject(key, &fixture); err != nil {
		return nil, err
	} else if exists {
		return &fixture, nil
	}

	result, err := utils.FetchModel[Fixture](ctx, customerId, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(key, result, 5*time.Minute); err != nil {
		return nil, err
	}
	return result, nil
}

// InvalidateFixtureCache drops the cached fixture after counter mutation.
func InvalidateFixtureCache(customerId string, id int) {
	_ = config.RemoveRedisKey(fixtureCacheKey(customerId, id))
}
