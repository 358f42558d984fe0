package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op rather than panicking
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestSetWarner(t *testing.T) {
	original := Warnf
	defer func() { Warnf = original }()

	var got string
	SetWarner(func(format string, v ...interface{}) {
		got = format
	})
	Warnf("exiftool missing for %s", "frame.cr2")
	if got != "exiftool missing for %s" {
		t.Errorf("warner received %q", got)
	}

	SetWarner(nil)
	Warnf("should be dropped")
}

func TestDefaultsNotNil(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
	if Warnf == nil {
		t.Error("Warnf should not be nil by default")
	}
}
