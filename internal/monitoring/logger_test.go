package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var captured string
	SetLogger(func(format string, v ...interface{}) {
		captured = fmt.Sprintf(format, v...)
	})

	Logf("processed %d frames", 42)
	if captured != "processed 42 frames" {
		t.Errorf("expected captured log, got %q", captured)
	}
}

func TestSetLoggerNilIsNoOp(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("dropped %s", "frame")
	SetLogger(nil)
}
