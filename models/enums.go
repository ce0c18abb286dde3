package models

import "errors"

type TransactionDirection string

const (
	TransactionDirectionReceipt TransactionDirection = "Receipt"
	TransactionDirectionReturn  TransactionDirection = "Return"
)

type RecordType string

const (
	RecordTypeBatch      RecordType = "Batch"
	RecordTypeIndividual RecordType = "Individual"
	RecordTypeDatecode   RecordType = "Datecode"
)

func (r *RecordType) UnmarshalText(b []byte) error {
	recordTypes := map[string]RecordType{
		"batch":      RecordTypeBatch,
		"individual": RecordTypeIndividual,
		"datecode":   RecordTypeDatecode,
	}
	v, ok := recordTypes[string(b)]
	if !ok {
		return errors.New("invalid record type")
	}
	*r = v
	return nil
}

type SourceType string

const (
	SourceTypeSelfPurchased    SourceType = "Self Purchased"
	SourceTypeCustomerSupplied SourceType = "Customer Supplied"
)

type LifecycleMode string

const (
	// LifecycleModeSerial tracks individually serialized units.
	LifecycleModeSerial LifecycleMode = "S"
	// LifecycleModeFixture tracks bulk datecode quantities.
	LifecycleModeFixture LifecycleMode = "F"
)

type ExistenceStatus string

const (
	ExistenceStatusInStock  ExistenceStatus = "In Stock"
	ExistenceStatusReturned ExistenceStatus = "Returned"
	ExistenceStatusScrapped ExistenceStatus = "Scrapped"
)

type UsageStatus string

const (
	UsageStatusIdle     UsageStatus = "Idle"
	UsageStatusDeployed UsageStatus = "Deployed"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
