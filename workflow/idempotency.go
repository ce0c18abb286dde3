package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func isSerializationErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213 deadlock, 1205 lock wait timeout
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// beginIdempotency inserts STARTED for the caller's dedup key. If a
// SUCCEEDED row already exists, returns (skip=true, recorded tx id): the
// retry must observe the original result without re-applying.
//
// Unlike outbox-style processing, the key row here lives in the SAME DB
// transaction as the ledger row, so a failed submission rolls its STARTED
// row back and a later retry starts clean.
func beginIdempotency(tx *gorm.DB, customerId, handlerName, messageId string) (skip bool, txId *int, err error) {
	key := models.IdempotencyKey{
		CustomerId:  customerId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil, nil
	} else if !isDuplicateKeyErr(err) {
		return false, nil, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("customer_id = ? AND handler_name = ? AND message_id = ?", customerId, handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, nil, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, existing.TxId, nil
	default:
		// A concurrent submission holds the key. Callers retry.
		return false, nil, ErrTransactionConflict
	}
}

func markIdempotencySucceeded(tx *gorm.DB, customerId, handlerName, messageId string, txId int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("customer_id = ? AND handler_name = ? AND message_id = ?", customerId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "tx_id": txId, "last_error": nil}).Error
}
