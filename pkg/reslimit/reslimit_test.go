package reslimit

import "testing"

func TestZeroLimitsYieldNoHandle(t *testing.T) {
	h, err := Acquire("app.a", Limits{})
	if err != nil {
		t.Fatalf("Acquire with zero limits should never error: %v", err)
	}
	if h != nil {
		t.Fatal("Acquire with zero limits must return a nil handle")
	}
}

func TestIsZero(t *testing.T) {
	if !(Limits{}).IsZero() {
		t.Fatal("empty Limits must report IsZero")
	}
	if (Limits{MaxProcesses: 4}).IsZero() {
		t.Fatal("a non-zero field must make IsZero false")
	}
}
