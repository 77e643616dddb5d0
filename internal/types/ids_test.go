// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if id == "" {
		t.Error("expected non-empty RunID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
	if NewRunID() == id {
		t.Error("expected distinct run ids")
	}
}
