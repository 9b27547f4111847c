package stage

import "testing"

func TestHealthSummary(t *testing.T) {
	if got := Healthy("upload").Summary(); got != "upload: ready" {
		t.Fatalf("Summary() = %q", got)
	}
	if got := Unhealthy("store", "database closed").Summary(); got != "store: database closed" {
		t.Fatalf("Summary() = %q", got)
	}
}
