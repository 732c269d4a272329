package handler

import (
	"strings"
	"time"

	"issuance/internal/registry/models"
	"issuance/internal/registry/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// RegisterSecurityRequest is the body of POST /securities.
type RegisterSecurityRequest struct {
	SecurityID    string     `json:"security_id"`
	IssuerLEI     string     `json:"issuer_lei"`
	UPI           string     `json:"upi"`
	Description   string     `json:"description"`
	Currency      string     `json:"currency"`
	IssueDate     time.Time  `json:"issue_date"`
	MaturityDate  *time.Time `json:"maturity_date,omitempty"`
	InitialSupply int64      `json:"initial_supply"`

	cmd service.RegisterCommand
}

// Validate parses identifiers. Empty fields are left for the registry to
// reject with InvalidSecurity.
func (r *RegisterSecurityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Description) > 512 {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 512 characters")
	}
	securityID, err := id.ParseSecurityID(r.SecurityID)
	if err != nil {
		return err
	}
	r.cmd = service.RegisterCommand{
		SecurityID:    securityID,
		UPI:           id.UPI(strings.TrimSpace(r.UPI)),
		Description:   r.Description,
		IssueDate:     r.IssueDate,
		MaturityDate:  r.MaturityDate,
		InitialSupply: r.InitialSupply,
	}
	if strings.TrimSpace(r.IssuerLEI) != "" {
		if r.cmd.IssuerLEI, err = id.ParseLEI(r.IssuerLEI); err != nil {
			return err
		}
	}
	if strings.TrimSpace(r.Currency) != "" {
		if r.cmd.Currency, err = id.ParseCurrency(r.Currency); err != nil {
			return err
		}
	}
	return nil
}

func (r *RegisterSecurityRequest) Command() service.RegisterCommand {
	return r.cmd
}

// CSDMappingRequest is the body of PUT /securities/{id}/csd-mappings.
type CSDMappingRequest struct {
	System        string `json:"csd_system"`
	CSDSecurityID string `json:"csd_security_id"`
	Active        *bool  `json:"active,omitempty"`

	system models.CSDSystem
}

func (r *CSDMappingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	system, err := models.ParseCSDSystem(r.System)
	if err != nil {
		return err
	}
	r.system = system
	r.CSDSecurityID = strings.TrimSpace(r.CSDSecurityID)
	if r.CSDSecurityID == "" {
		return dErrors.New(dErrors.CodeValidation, "csd_security_id is required")
	}
	return nil
}

func (r *CSDMappingRequest) Mapping(securityID id.SecurityID) models.CSDMapping {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.CSDMapping{SecurityID: securityID, System: r.system, CSDSecurityID: r.CSDSecurityID, Active: active}
}
