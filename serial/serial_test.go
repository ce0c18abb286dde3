package serial

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		in         string
		prefix     string
		digits     string
		wantErr    error
	}{
		{in: "L001", prefix: "L", digits: "001"},
		{in: "  A-7/B 042  ", prefix: "A-7/B ", digits: "042"},
		{in: "A1B2", prefix: "A1B", digits: "2"},
		{in: "0001", prefix: "", digits: "0001"},
		{in: "FX_10.2:33", prefix: "FX_10.2:", digits: "33"},
		{in: "", wantErr: ErrMalformedSerial},
		{in: "   ", wantErr: ErrMalformedSerial},
		{in: "ABC", wantErr: ErrMalformedSerial},
		{in: "A#1", wantErr: ErrMalformedSerial},
	}
	for _, tc := range cases {
		prefix, digits, err := Split(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Split(%q) err = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Split(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if prefix != tc.prefix || digits != tc.digits {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tc.in, prefix, digits, tc.prefix, tc.digits)
		}
	}
}

func TestExpand_EndEndpointDictatesWidth(t *testing.T) {
	got, err := Expand("L1", "L010")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"L001", "L002", "L003", "L004", "L005", "L006", "L007", "L008", "L009", "L010"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand(L1, L010) = %v, want %v", got, want)
	}
}

func TestExpand_SingleElement(t *testing.T) {
	got, err := Expand("Z9", "Z9")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 1 || got[0] != "Z9" {
		t.Fatalf("Expand(Z9, Z9) = %v", got)
	}
}

func TestExpand_Errors(t *testing.T) {
	cases := []struct {
		start, end string
		want       error
	}{
		{"A1", "B9", ErrPrefixMismatch},
		{"A10", "A2", ErrInvertedRange},
		{"A", "A9", ErrMalformedSerial},
		{"A1", "A99999999", ErrRangeTooLarge},
	}
	for _, tc := range cases {
		if _, err := Expand(tc.start, tc.end); !errors.Is(err, tc.want) {
			t.Errorf("Expand(%q, %q) err = %v, want %v", tc.start, tc.end, err, tc.want)
		}
	}
}

func TestExpand_RoundTripsThroughSplit(t *testing.T) {
	out, err := Expand("FX-1", "FX-120")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 120 {
		t.Fatalf("len = %d, want 120", len(out))
	}
	for _, s := range out {
		prefix, _, err := Split(s)
		if err != nil {
			t.Fatalf("Split(%q): %v", s, err)
		}
		if prefix != "FX-" {
			t.Fatalf("Split(%q) prefix = %q, want FX-", s, prefix)
		}
	}
}

func TestNormalize_DedupAndMixedWidths(t *testing.T) {
	got := Normalize([]string{"A1", "A02", "A1", " A3 "})
	want := []string{"A01", "A02", "A03"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_SkipsUnparseableSilently(t *testing.T) {
	got := Normalize([]string{"", "   ", "NOPE", "B2", "A10"})
	want := []string{"A10", "B02"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := []string{"Q9", "Q10", "Q009", "R1", "q2"}
	once := Normalize(in)
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Normalize not idempotent: %v vs %v", once, twice)
	}
}

func TestNormalize_SortsByPrefixThenValue(t *testing.T) {
	got := Normalize([]string{"B1", "A10", "A2"})
	want := []string{"A02", "A10", "B01"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
}
