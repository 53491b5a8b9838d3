package models

import (
	"testing"
)

func TestNewLoginAuditMetadata_Complete(t *testing.T) {
	metadata := NewLoginAuditMetadata("a****@*******.com", true, 2, []Signal{SignalNewIP, SignalNewDevice})

	if metadata["email"] != "a****@*******.com" {
		t.Errorf("expected masked email, got %v", metadata["email"])
	}
	if metadata["two_factor"] != true {
		t.Errorf("expected two_factor true, got %v", metadata["two_factor"])
	}
	if metadata["failed_attempts"] != 2 {
		t.Errorf("expected failed_attempts 2, got %v", metadata["failed_attempts"])
	}

	signals, ok := metadata["signals"].([]string)
	if !ok {
		t.Fatalf("expected signals to be []string, got %T", metadata["signals"])
	}
	if len(signals) != 2 || signals[0] != "new_ip" || signals[1] != "new_device" {
		t.Errorf("expected [new_ip new_device], got %v", signals)
	}
}

func TestNewLoginAuditMetadata_OmitOptionalFields(t *testing.T) {
	metadata := NewLoginAuditMetadata("", false, 0, nil)

	if _, hasEmail := metadata["email"]; hasEmail {
		t.Errorf("expected email to be omitted, found %v", metadata["email"])
	}
	if _, hasSignals := metadata["signals"]; hasSignals {
		t.Errorf("expected signals to be omitted, found %v", metadata["signals"])
	}
}

func TestAuditMetadata_ScanValue(t *testing.T) {
	in := AuditMetadata{"action": "confirm", "attempts": float64(3)}

	raw, err := in.Value()
	if err != nil {
		t.Fatalf("Value() = %v", err)
	}

	var out AuditMetadata
	if err := out.Scan(raw); err != nil {
		t.Fatalf("Scan() = %v", err)
	}
	if out["action"] != "confirm" || out["attempts"] != float64(3) {
		t.Errorf("unexpected scanned metadata: %v", out)
	}

	var empty AuditMetadata
	if err := empty.Scan(nil); err != nil || empty == nil {
		t.Errorf("Scan(nil) should yield an empty map, got %v / %v", empty, err)
	}
}
