package importer

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/fixtures_backend/models"
)

func TestParseRow_Receipt(t *testing.T) {
	row := []string{"receipt", "12", "batch", "PO-55", "self_purchased", "L1", "L010", "", "", "", "aye min", "first delivery"}
	parsed, err := ParseRow(row, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Direction != models.TransactionDirectionReceipt {
		t.Fatalf("direction = %q", parsed.Direction)
	}
	if parsed.Input.FixtureId != 12 || parsed.Input.RecordType != models.RecordTypeBatch {
		t.Fatalf("fixture/type wrong: %d %q", parsed.Input.FixtureId, parsed.Input.RecordType)
	}
	if parsed.Input.SerialStart != "L1" || parsed.Input.SerialEnd != "L010" {
		t.Fatalf("serial range wrong: %q..%q", parsed.Input.SerialStart, parsed.Input.SerialEnd)
	}
	if parsed.Input.Operator != "aye min" || parsed.Input.Note != "first delivery" {
		t.Fatalf("trailing columns wrong: %q %q", parsed.Input.Operator, parsed.Input.Note)
	}
}

func TestParseRow_ReturnWithShortRow(t *testing.T) {
	// Spreadsheets drop trailing empty cells; missing columns read as empty.
	row := []string{"return", "3", "datecode", "", "", "", "", "", "2410A", "30"}
	parsed, err := ParseRow(row, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Direction != models.TransactionDirectionReturn {
		t.Fatalf("direction = %q", parsed.Direction)
	}
	if parsed.Input.Datecode != "2410A" || parsed.Input.Quantity != 30 {
		t.Fatalf("datecode row wrong: %q %d", parsed.Input.Datecode, parsed.Input.Quantity)
	}
	if parsed.Row != 5 {
		t.Fatalf("row number not carried: %d", parsed.Row)
	}
}

func TestParseRow_Errors(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want string
	}{
		{"bad direction", []string{"sideways", "1", "batch"}, "unknown direction"},
		{"bad fixture id", []string{"receipt", "zero", "batch"}, "invalid fixture id"},
		{"negative fixture id", []string{"receipt", "-4", "batch"}, "invalid fixture id"},
		{"bad record type", []string{"receipt", "1", "pallet"}, "record type"},
		{"bad quantity", []string{"receipt", "1", "datecode", "", "", "", "", "", "2410A", "many"}, "invalid quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRow(tt.row, 3)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q should mention %q", err, tt.want)
			}
			if !strings.Contains(err.Error(), "row 3") {
				t.Fatalf("error %q should carry the row number", err)
			}
		})
	}
}

func TestParseRow_DirectionAliases(t *testing.T) {
	for raw, want := range map[string]models.TransactionDirection{
		"in":      models.TransactionDirectionReceipt,
		"RECEIPT": models.TransactionDirectionReceipt,
		"out":     models.TransactionDirectionReturn,
		"Return":  models.TransactionDirectionReturn,
	} {
		parsed, err := ParseRow([]string{raw, "1", "individual", "", "", "", "", "S1"}, 2)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
		if parsed.Direction != want {
			t.Fatalf("%q resolved to %q", raw, parsed.Direction)
		}
	}
}
