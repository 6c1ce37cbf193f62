package app

import (
	"testing"

	"github.com/lorekeep/lorekeep/internal/log"
)

func TestClose_RunsCleanupsInReverseOrder(t *testing.T) {
	a := &App{Logger: log.NewNop()}

	var order []string
	a.onClose(func() { order = append(order, "first") })
	a.onClose(func() { order = append(order, "second") })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("cleanup order = %v, want [second first]", order)
	}

	// A second Close is a no-op.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("cleanups ran again on second Close: %v", order)
	}
}
