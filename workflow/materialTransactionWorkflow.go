package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"bitbucket.org/mmdatafocus/fixtures_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const engineModule = "materialTransactionWorkflow.go"

// Actor identifies the authenticated principal submitting a lot. It is
// resolved by the identity boundary and passed explicitly, as is the
// customer id: the engine never reads tenant identity from ambient state.
type Actor struct {
	ID   int
	Name string
}

// SubmitReceipt validates and applies one receipt lot atomically, returning
// the ledger transaction id. On any error, no state was changed.
func SubmitReceipt(ctx context.Context, customerId string, actor Actor, input *models.NewMaterialTransaction) (int, error) {
	return apply(ctx, customerId, actor, models.TransactionDirectionReceipt, input)
}

// SubmitReturn validates and applies one return lot atomically, returning
// the ledger transaction id. On any error, no state was changed.
func SubmitReturn(ctx context.Context, customerId string, actor Actor, input *models.NewMaterialTransaction) (int, error) {
	return apply(ctx, customerId, actor, models.TransactionDirectionReturn, input)
}

// apply is the shared kernel. Step order is strict:
// resolve -> lock -> preconditions -> validate ALL units -> ledger append ->
// per-unit mutation -> counter reconciliation -> commit.
// Any single-unit failure aborts the entire lot.
func apply(ctx context.Context, customerId string, actor Actor, direction models.TransactionDirection, input *models.NewMaterialTransaction) (int, error) {
	if strings.TrimSpace(customerId) == "" {
		return 0, errors.New("customer id is required")
	}

	lot, err := ResolveLot(input, direction)
	if err != nil {
		return 0, err
	}

	// Serialize lots per (customer, fixture). The DB row locks below are the
	// correctness mechanism; the redis lock keeps concurrent submissions from
	// piling up on InnoDB lock waits.
	release, err := utils.FixtureLock(ctx, customerId, input.FixtureId, engineModule, "apply")
	if err != nil {
		return 0, err
	}
	defer release()

	db := config.GetDB()
	var txId int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.DedupKey != "" {
			skip, recorded, err := beginIdempotency(tx, customerId, string(direction), input.DedupKey)
			if err != nil {
				return err
			}
			if skip {
				if recorded != nil {
					txId = *recorded
				}
				return nil
			}
		}

		fixture, err := lockFixture(tx, customerId, input.FixtureId)
		if err != nil {
			return err
		}
		if fixture.IsScrapped != nil && *fixture.IsScrapped {
			return fmt.Errorf("%w: fixture %d", ErrFixtureScrapped, fixture.ID)
		}
		if err := checkLifecycleMode(tx, customerId, fixture, lot.RecordType); err != nil {
			return err
		}

		// Validate the whole lot before touching anything.
		var existing map[string]*models.SerialRecord
		var bucket *models.DatecodeBucket
		switch lot.RecordType {
		case models.RecordTypeDatecode:
			bucket, err = lockBucket(tx, customerId, fixture.ID, lot.Datecode)
			if err != nil {
				return err
			}
			if direction == models.TransactionDirectionReturn {
				onHand := 0
				if bucket != nil {
					onHand = bucket.QuantityOnHand
				}
				if onHand < lot.Quantity {
					return fmt.Errorf("%w: datecode %q holds %d, return of %d requested",
						ErrInsufficientDatecodeStock, lot.Datecode, onHand, lot.Quantity)
				}
			}
		default:
			existing, err = validateSerialLot(tx, customerId, fixture.ID, lot.Serials, direction)
			if err != nil {
				return err
			}
		}

		// Ledger append.
		row := ledgerRow(customerId, fixture.ID, direction, lot, input, actor)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		txId = row.ID

		// Per-unit state mutation.
		switch lot.RecordType {
		case models.RecordTypeDatecode:
			if err := adjustBucket(tx, customerId, fixture.ID, lot, bucket, direction); err != nil {
				return err
			}
		default:
			if err := mutateSerialLot(tx, customerId, fixture.ID, lot.Serials, existing, direction, txId); err != nil {
				return err
			}
		}

		// A mode switch is only reachable at zero on-hand (checked above);
		// the first transaction of the new representation pins it.
		required := modeForRecordType(lot.RecordType)
		if fixture.LifecycleMode != required {
			if err := tx.Model(&models.Fixture{}).
				Where("customer_id = ? AND id = ?", customerId, fixture.ID).
				Update("lifecycle_mode", required).Error; err != nil {
				return err
			}
			fixture.LifecycleMode = required
		}

		if err := ReconcileFixtureCounters(tx, customerId, fixture); err != nil {
			return err
		}

		if input.DedupKey != "" {
			if err := markIdempotencySucceeded(tx, customerId, string(direction), input.DedupKey, txId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isSerializationErr(err) {
			return 0, fmt.Errorf("%w: %v", ErrTransactionConflict, err)
		}
		return 0, err
	}

	models.InvalidateFixtureCache(customerId, input.FixtureId)
	return txId, nil
}

func modeForRecordType(recordType models.RecordType) models.LifecycleMode {
	if recordType == models.RecordTypeDatecode {
		return models.LifecycleModeFixture
	}
	return models.LifecycleModeSerial
}

func lockFixture(tx *gorm.DB, customerId string, fixtureId int) (*models.Fixture, error) {
	var fixture models.Fixture
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND id = ?", customerId, fixtureId).
		First(&fixture).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: fixture %d", ErrFixtureNotFound, fixtureId)
		}
		return nil, err
	}
	return &fixture, nil
}

// checkLifecycleMode enforces mode purity: a serial-mode fixture rejects
// datecode lots and vice versa, unless the fixture holds zero units.
func checkLifecycleMode(tx *gorm.DB, customerId string, fixture *models.Fixture, recordType models.RecordType) error {
	required := modeForRecordType(recordType)
	if fixture.LifecycleMode == required {
		return nil
	}
	onHand, err := onHandQty(tx, customerId, fixture.ID)
	if err != nil {
		return err
	}
	if onHand != 0 {
		return fmt.Errorf("%w: fixture %d is in %q mode with %d units on hand",
			ErrLifecycleModeMismatch, fixture.ID, fixture.LifecycleMode, onHand)
	}
	return nil
}

// validateSerialLot locks every affected serial row and checks the
// direction-specific transition for each unit. Nothing is mutated here.
func validateSerialLot(tx *gorm.DB, customerId string, fixtureId int, serials []string, direction models.TransactionDirection) (map[string]*models.SerialRecord, error) {
	existing := make(map[string]*models.SerialRecord, len(serials))
	for _, s := range serials {
		var record models.SerialRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("customer_id = ? AND fixture_id = ? AND serial = ?", customerId, fixtureId, s).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if direction == models.TransactionDirectionReturn {
				return nil, fmt.Errorf("%w: serial %q was never received", ErrSerialNotReturnable, s)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		if direction == models.TransactionDirectionReceipt {
			switch record.ExistenceStatus {
			case models.ExistenceStatusReturned:
				// re-receipt reuses the row
			case models.ExistenceStatusInStock:
				return nil, fmt.Errorf("%w: serial %q", ErrSerialAlreadyInStock, s)
			case models.ExistenceStatusScrapped:
				return nil, fmt.Errorf("%w: serial %q", ErrSerialScrapped, s)
			}
		} else {
			switch {
			case record.ExistenceStatus == models.ExistenceStatusScrapped:
				return nil, fmt.Errorf("%w: serial %q is scrapped", ErrSerialNotReturnable, s)
			case record.ExistenceStatus == models.ExistenceStatusReturned:
				return nil, fmt.Errorf("%w: serial %q already returned", ErrSerialNotReturnable, s)
			case record.UsageStatus == models.UsageStatusDeployed:
				return nil, fmt.Errorf("%w: serial %q is deployed on a station", ErrSerialNotReturnable, s)
			}
		}
		rec := record
		existing[s] = &rec
	}
	return existing, nil
}

// mutateSerialLot applies the validated transitions. Runs only after the
// ledger row exists so every record can reference its witnessing tx.
func mutateSerialLot(tx *gorm.DB, customerId string, fixtureId int, serials []string, existing map[string]*models.SerialRecord, direction models.TransactionDirection, txId int) error {
	if direction == models.TransactionDirectionReceipt {
		newRecords := make([]models.SerialRecord, 0, len(serials))
		for _, s := range serials {
			if record, ok := existing[s]; ok {
				err := tx.Model(&models.SerialRecord{}).
					Where("customer_id = ? AND id = ?", customerId, record.ID).
					Updates(map[string]interface{}{
						"existence_status": models.ExistenceStatusInStock,
						"usage_status":     models.UsageStatusIdle,
						"receipt_tx_id":    txId,
					}).Error
				if err != nil {
					return err
				}
				continue
			}
			newRecords = append(newRecords, models.SerialRecord{
				CustomerId:      customerId,
				FixtureId:       fixtureId,
				Serial:          s,
				ExistenceStatus: models.ExistenceStatusInStock,
				UsageStatus:     models.UsageStatusIdle,
				ReceiptTxId:     txId,
			})
		}
		if len(newRecords) > 0 {
			if err := tx.Create(&newRecords).Error; err != nil {
				return err
			}
		}
		return nil
	}

	for _, s := range serials {
		record := existing[s]
		err := tx.Model(&models.SerialRecord{}).
			Where("customer_id = ? AND id = ?", customerId, record.ID).
			Updates(map[string]interface{}{
				"existence_status":  models.ExistenceStatusReturned,
				"last_return_tx_id": txId,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func lockBucket(tx *gorm.DB, customerId string, fixtureId int, datecode string) (*models.DatecodeBucket, error) {
	var bucket models.DatecodeBucket
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND fixture_id = ? AND datecode = ?", customerId, fixtureId, datecode).
		First(&bucket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func adjustBucket(tx *gorm.DB, customerId string, fixtureId int, lot *ResolvedLot, bucket *models.DatecodeBucket, direction models.TransactionDirection) error {
	if direction == models.TransactionDirectionReceipt {
		if bucket == nil {
			return tx.Create(&models.DatecodeBucket{
				CustomerId:     customerId,
				FixtureId:      fixtureId,
				Datecode:       lot.Datecode,
				QuantityOnHand: lot.Quantity,
			}).Error
		}
		return tx.Model(&models.DatecodeBucket{}).
			Where("customer_id = ? AND id = ?", customerId, bucket.ID).
			Update("quantity_on_hand", gorm.Expr("quantity_on_hand + ?", lot.Quantity)).Error
	}

	// Validation guaranteed sufficiency under the row lock; the WHERE guard
	// keeps the bucket non-negative even so.
	result := tx.Model(&models.DatecodeBucket{}).
		Where("customer_id = ? AND id = ? AND quantity_on_hand >= ?", customerId, bucket.ID, lot.Quantity).
		Update("quantity_on_hand", gorm.Expr("quantity_on_hand - ?", lot.Quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: datecode %q", ErrInsufficientDatecodeStock, lot.Datecode)
	}
	return nil
}

func ledgerRow(customerId string, fixtureId int, direction models.TransactionDirection, lot *ResolvedLot, input *models.NewMaterialTransaction, actor Actor) *models.MaterialTransaction {
	row := &models.MaterialTransaction{
		CustomerId: customerId,
		FixtureId:  fixtureId,
		Direction:  direction,
		RecordType: lot.RecordType,
		OrderNo:    strings.TrimSpace(input.OrderNo),
		SourceType: lot.SourceType,
		UnitCount:  lot.UnitCount,
		Operator:   strings.TrimSpace(input.Operator),
		ActorId:    actor.ID,
		Note:       strings.TrimSpace(input.Note),
	}
	if row.Operator == "" {
		row.Operator = actor.Name
	}
	switch lot.RecordType {
	case models.RecordTypeDatecode:
		row.Datecode = lot.Datecode
	default:
		row.Serials = strings.Join(lot.Serials, ",")
		if lot.RecordType == models.RecordTypeBatch {
			row.SerialStart = lot.Serials[0]
			row.SerialEnd = lot.Serials[len(lot.Serials)-1]
		}
	}
	return row
}
