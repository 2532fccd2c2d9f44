package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("backend_private_key", "0xdeadbeef")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected redacted value, got %q", attr.Value.String())
	}
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("proposal_id", "42")
	if attr.Value.String() != "42" {
		t.Fatalf("expected unmasked value, got %q", attr.Value.String())
	}
}

func TestMaskValueLeavesEmptyUnchanged(t *testing.T) {
	if MaskValue("") != "" {
		t.Fatalf("expected empty value to stay empty")
	}
}
