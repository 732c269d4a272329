package store_test

import (
	"testing"

	"issuance/internal/derivatives/store"
)

func TestInMemoryReports(t *testing.T) {
	runReportContract(t, func(*testing.T) reportStore { return store.NewInMemory() })
}
