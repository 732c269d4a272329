package store_test

import (
	"testing"

	"issuance/internal/corporateaction/store"
)

func TestInMemoryFacts(t *testing.T) {
	runFactContract(t, func(*testing.T) factStore { return store.NewInMemory() })
}
