package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/fixtures_backend/config"
	"bitbucket.org/mmdatafocus/fixtures_backend/models"
	"bitbucket.org/mmdatafocus/fixtures_backend/workflow"
	"github.com/xuri/excelize/v2"
)

// Expected column order on Sheet1, first row is the header:
// direction | fixture_id | record_type | order_no | source_type |
// serial_start | serial_end | serials | datecode | quantity | operator | note
const (
	colDirection = iota
	colFixtureId
	colRecordType
	colOrderNo
	colSourceType
	colSerialStart
	colSerialEnd
	colSerials
	colDatecode
	colQuantity
	colOperator
	colNote
	columnCount
)

// SheetRow is one parsed spreadsheet line: a lot descriptor plus its
// direction. Parsing is pure; nothing here touches the database.
type SheetRow struct {
	Row       int
	Direction models.TransactionDirection
	Input     models.NewMaterialTransaction
}

// RowError reports a single failed line. Row is the 1-based spreadsheet row
// number as the user sees it in their editor.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// ImportSummary is returned to the caller after an ingest run. Each sheet
// row is its own lot: a failed row never blocks the rows around it.
type ImportSummary struct {
	Submitted int        `json:"submitted"`
	Failed    int        `json:"failed"`
	TxIds     []int      `json:"tx_ids"`
	Errors    []RowError `json:"errors,omitempty"`
}

// ParseRow converts one spreadsheet line into a lot submission. rowNum is
// the 1-based row number used in error messages.
func ParseRow(row []string, rowNum int) (*SheetRow, error) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var direction models.TransactionDirection
	switch strings.ToLower(cell(colDirection)) {
	case "receipt", "in":
		direction = models.TransactionDirectionReceipt
	case "return", "out":
		direction = models.TransactionDirectionReturn
	default:
		return nil, fmt.Errorf("row %d: unknown direction %q", rowNum, cell(colDirection))
	}

	fixtureId, err := strconv.Atoi(cell(colFixtureId))
	if err != nil || fixtureId <= 0 {
		return nil, fmt.Errorf("row %d: invalid fixture id %q", rowNum, cell(colFixtureId))
	}

	var recordType models.RecordType
	if err := recordType.UnmarshalText([]byte(strings.ToLower(cell(colRecordType)))); err != nil {
		return nil, fmt.Errorf("row %d: %v", rowNum, err)
	}

	quantity := 0
	if q := cell(colQuantity); q != "" {
		quantity, err = strconv.Atoi(q)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity %q", rowNum, q)
		}
	}

	return &SheetRow{
		Row:       rowNum,
		Direction: direction,
		Input: models.NewMaterialTransaction{
			FixtureId:   fixtureId,
			RecordType:  recordType,
			OrderNo:     cell(colOrderNo),
			SourceType:  cell(colSourceType),
			SerialStart: cell(colSerialStart),
			SerialEnd:   cell(colSerialEnd),
			SerialsRaw:  cell(colSerials),
			Datecode:    cell(colDatecode),
			Quantity:    quantity,
			Operator:    cell(colOperator),
			Note:        cell(colNote),
		},
	}, nil
}

// ParseSheet reads Sheet1 of an xlsx stream into submissions. Rows that fail
// to parse become RowErrors; parseable rows are returned for submission.
func ParseSheet(r io.Reader) ([]SheetRow, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) <= 1 {
		return nil, nil, errors.New("sheet has no data rows")
	}

	parsed := make([]SheetRow, 0, len(rows)-1)
	var rowErrors []RowError
	for idx, row := range rows[1:] {
		rowNum := idx + 2
		sheetRow, err := ParseRow(row, rowNum)
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: rowNum, Err: err.Error()})
			continue
		}
		parsed = append(parsed, *sheetRow)
	}
	return parsed, rowErrors, nil
}

// ImportFromXlsx ingests a spreadsheet of lot submissions for one customer.
// Every row runs through the same engine path as the API endpoints, so each
// row is individually atomic and individually validated.
func ImportFromXlsx(ctx context.Context, customerId string, actor workflow.Actor, filename string, r io.Reader) (*ImportSummary, error) {
	if !strings.HasSuffix(filename, ".xlsx") {
		return nil, fmt.Errorf("invalid file type: only .xlsx files are allowed")
	}

	parsed, rowErrors, err := ParseSheet(r)
	if err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	summary := &ImportSummary{Errors: rowErrors, Failed: len(rowErrors)}
	for _, sheetRow := range parsed {
		input := sheetRow.Input
		var txId int
		if sheetRow.Direction == models.TransactionDirectionReceipt {
			txId, err = workflow.SubmitReceipt(ctx, customerId, actor, &input)
		} else {
			txId, err = workflow.SubmitReturn(ctx, customerId, actor, &input)
		}
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{Row: sheetRow.Row, Err: err.Error()})
			config.LogError(logger, "importer.go", "ImportFromXlsx", "row submission failed",
				map[string]interface{}{"customerId": customerId, "fixtureId": input.FixtureId}, err)
			continue
		}
		summary.Submitted++
		summary.TxIds = append(summary.TxIds, txId)
	}
	return summary, nil
}
