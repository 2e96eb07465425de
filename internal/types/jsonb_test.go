package types

import (
	"testing"
)

func TestMetadata_ValueScan_RoundTrip(t *testing.T) {
	original := Metadata{
		"cardFirstSix": "424242",
		"testMode":     true,
		"totalFee":     12.5,
	}

	dv, err := original.Value()
	if err != nil {
		t.Fatalf("Value() returned error: %v", err)
	}

	var got Metadata
	if err := got.Scan(dv); err != nil {
		t.Fatalf("Scan() returned error: %v", err)
	}

	if got["cardFirstSix"] != "424242" || got["testMode"] != true || got["totalFee"] != 12.5 {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestMetadata_NilIsNull(t *testing.T) {
	var m Metadata
	dv, err := m.Value()
	if err != nil {
		t.Fatalf("Value() returned error: %v", err)
	}
	if dv != nil {
		t.Errorf("Value() of nil Metadata = %v, want nil", dv)
	}

	m = Metadata{"a": 1.0}
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) returned error: %v", err)
	}
	if m != nil {
		t.Errorf("Scan(nil) should reset to nil, got %v", m)
	}
}

func TestMetadata_ScanBytesAndEmpty(t *testing.T) {
	var m Metadata
	if err := m.Scan([]byte(`{"token":"tk_1"}`)); err != nil {
		t.Fatalf("Scan([]byte) returned error: %v", err)
	}
	if m["token"] != "tk_1" {
		t.Errorf("Scan([]byte) = %v", m)
	}

	var empty Metadata
	if err := empty.Scan(""); err != nil {
		t.Fatalf("Scan(\"\") returned error: %v", err)
	}
	if empty != nil {
		t.Errorf("Scan(\"\") = %v, want nil", empty)
	}

	if err := empty.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
