package service

import (
	"context"
	"fmt"

	"issuance/internal/corporateaction/models"
	registrymodels "issuance/internal/registry/models"
	id "issuance/pkg/domain"
)

// SupplyScaler applies a split ratio to a security's supply.
type SupplyScaler interface {
	ScaleSupply(ctx context.Context, securityID id.SecurityID, numerator, denominator int64, reason string) (*registrymodels.Security, error)
}

// SplitSupplyHandler scales the registry supply counter by the split ratio.
func SplitSupplyHandler(registry SupplyScaler) Handler {
	return HandlerFunc(func(ctx context.Context, f *models.Fact) error {
		terms, ok := f.Terms.(models.SplitTerms)
		if !ok {
			return fmt.Errorf("split handler got %s terms", f.Kind)
		}
		_, err := registry.ScaleSupply(ctx, f.SecurityID, terms.Numerator, terms.Denominator, "corporate_action:"+f.Reference)
		return err
	})
}
