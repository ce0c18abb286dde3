package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"bitbucket.org/mmdatafocus/fixtures_backend/serial"
)

// ResolvedLot is the canonical internal form of a submitted lot: either an
// ordered list of normalized serials, or one datecode bucket quantity.
type ResolvedLot struct {
	RecordType models.RecordType
	SourceType models.SourceType
	Serials    []string
	Datecode   string
	Quantity   int
	UnitCount  int
}

// ResolveLot canonicalizes a lot descriptor. All shape validation happens
// here, before any database state is inspected; a lot that resolves is
// guaranteed non-empty.
func ResolveLot(input *models.NewMaterialTransaction, direction models.TransactionDirection) (*ResolvedLot, error) {
	sourceType, err := resolveSourceType(input.SourceType, direction)
	if err != nil {
		return nil, err
	}

	switch input.RecordType {
	case models.RecordTypeBatch:
		serials, err := serial.Expand(input.SerialStart, input.SerialEnd)
		if err != nil {
			return nil, err
		}
		return &ResolvedLot{
			RecordType: models.RecordTypeBatch,
			SourceType: sourceType,
			Serials:    serials,
			UnitCount:  len(serials),
		}, nil

	case models.RecordTypeIndividual:
		raw := input.Serials
		if trimmed := strings.TrimSpace(input.SerialsRaw); trimmed != "" {
			raw = append(raw, strings.Split(trimmed, ",")...)
		}
		serials := serial.Normalize(raw)
		if len(serials) == 0 {
			return nil, ErrEmptyLot
		}
		return &ResolvedLot{
			RecordType: models.RecordTypeIndividual,
			SourceType: sourceType,
			Serials:    serials,
			UnitCount:  len(serials),
		}, nil

	case models.RecordTypeDatecode:
		code := strings.TrimSpace(input.Datecode)
		if code == "" {
			return nil, ErrInvalidDatecode
		}
		if input.Quantity <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrNonPositiveQuantity, input.Quantity)
		}
		return &ResolvedLot{
			RecordType: models.RecordTypeDatecode,
			SourceType: sourceType,
			Datecode:   code,
			Quantity:   input.Quantity,
			UnitCount:  input.Quantity,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, input.RecordType)
	}
}

// resolveSourceType validates source_type on receipts; returns ignore it.
func resolveSourceType(raw string, direction models.TransactionDirection) (models.SourceType, error) {
	if direction != models.TransactionDirectionReceipt {
		return "", nil
	}
	switch strings.TrimSpace(raw) {
	case "":
		return "", nil
	case "self_purchased", string(models.SourceTypeSelfPurchased):
		return models.SourceTypeSelfPurchased, nil
	case "customer_supplied", string(models.SourceTypeCustomerSupplied):
		return models.SourceTypeCustomerSupplied, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSourceType, raw)
	}
}
