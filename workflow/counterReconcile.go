package workflow

import (
	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"gorm.io/gorm"
)

// ReconcileFixtureCounters recomputes the fixture aggregate counters from
// per-unit state and persists them. Recomputation (one aggregate query
// scoped to the fixture) is deliberate: it keeps the counters correct even
// if a per-unit mutation step had a bug, instead of compounding deltas.
func ReconcileFixtureCounters(tx *gorm.DB, customerId string, fixture *models.Fixture) error {
	inStock := 0
	deployed := fixture.DeployedQty

	switch fixture.LifecycleMode {
	case models.LifecycleModeFixture:
		var sum *int
		err := tx.Model(&models.DatecodeBucket{}).
			Select("SUM(quantity_on_hand)").
			Where("customer_id = ? AND fixture_id = ?", customerId, fixture.ID).
			Scan(&sum).Error
		if err != nil {
			return err
		}
		if sum != nil {
			inStock = *sum
		}

	default: // serial mode
		var n int64
		err := tx.Model(&models.SerialRecord{}).
			Where("customer_id = ? AND fixture_id = ? AND existence_status = ?",
				customerId, fixture.ID, models.ExistenceStatusInStock).
			Count(&n).Error
		if err != nil {
			return err
		}
		inStock = int(n)

		var d int64
		err = tx.Model(&models.SerialRecord{}).
			Where("customer_id = ? AND fixture_id = ? AND existence_status = ? AND usage_status = ?",
				customerId, fixture.ID, models.ExistenceStatusInStock, models.UsageStatusDeployed).
			Count(&d).Error
		if err != nil {
			return err
		}
		deployed = int(d)
	}

	err := tx.Model(&models.Fixture{}).
		Where("customer_id = ? AND id = ?", customerId, fixture.ID).
		Updates(map[string]interface{}{
			"in_stock_qty": inStock,
			"deployed_qty": deployed,
		}).Error
	if err != nil {
		return err
	}
	fixture.InStockQty = inStock
	fixture.DeployedQty = deployed
	return nil
}

// onHandQty returns the units currently held for mode-pinning checks.
// Counts BOTH families so a fixture with any residual stock in either
// representation cannot flip modes.
func onHandQty(tx *gorm.DB, customerId string, fixtureId int) (int, error) {
	var serialCount int64
	err := tx.Model(&models.SerialRecord{}).
		Where("customer_id = ? AND fixture_id = ? AND existence_status = ?",
			customerId, fixtureId, models.ExistenceStatusInStock).
		Count(&serialCount).Error
	if err != nil {
		return 0, err
	}

	var sum *int
	err = tx.Model(&models.DatecodeBucket{}).
		Select("SUM(quantity_on_hand)").
		Where("customer_id = ? AND fixture_id = ?", customerId, fixtureId).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	bucketQty := 0
	if sum != nil {
		bucketQty = *sum
	}
	return int(serialCount) + bucketQty, nil
}
