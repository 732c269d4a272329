package store_test

import (
	"testing"

	"issuance/internal/reconciliation/store"
)

func TestInMemoryMarkers(t *testing.T) {
	runMarkerContract(t, func(*testing.T) markers { return store.NewInMemory() })
}
