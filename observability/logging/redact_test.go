package logging

import "testing"

func TestMaskField(t *testing.T) {
	if got := MaskField("client", "key:secret").Value.String(); got != RedactedValue {
		t.Fatalf("client not masked: %q", got)
	}
	if got := MaskField("API_KEY", "secret").Value.String(); got != RedactedValue {
		t.Fatalf("api key not masked: %q", got)
	}
	if got := MaskField("client", "").Value.String(); got != "" {
		t.Fatalf("empty value rewritten: %q", got)
	}
	if got := MaskField("market", "USDC").Value.String(); got != "USDC" {
		t.Fatalf("market masked: %q", got)
	}
}
