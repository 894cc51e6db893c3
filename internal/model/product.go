package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/shopspring/decimal"
)

// ProductRecord is one line item from one invoice, as produced by the parser.
type ProductRecord struct {
	IssuedAt       time.Time       `json:"issued_at,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitValue      decimal.Decimal `json:"unit_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Description    string          `json:"description"`
	Code           string          `json:"code,omitempty"` // NCM as printed on the invoice, may be empty or wrong
	DocumentID     string          `json:"document_id"`    // NF-e access key
	DocumentNumber string          `json:"document_number,omitempty"`
	IssuerTaxID    string          `json:"issuer_tax_id,omitempty"`
	IssuerName     string          `json:"issuer_name,omitempty"`
	Line           int             `json:"line,omitempty"`
}

// HasCode reports whether the record carries any tax classification code.
func (r ProductRecord) HasCode() bool {
	return strings.TrimSpace(r.Code) != ""
}

// Validate checks the parser contract: a non-empty description and non-negative money.
func (r ProductRecord) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: empty description", common.ErrMalformedRecord)
	}
	if NormalizeDescription(r.Description) == "" {
		return fmt.Errorf("%w: description %q has no letters or digits", common.ErrMalformedRecord, r.Description)
	}
	for name, v := range map[string]decimal.Decimal{
		"quantity":    r.Quantity,
		"unit value":  r.UnitValue,
		"total value": r.TotalValue,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: negative %s %s", common.ErrMalformedRecord, name, v.String())
		}
	}
	return nil
}

// ClassifyRequest is what the resolver sends to the external classifier.
type ClassifyRequest struct {
	TotalValue  decimal.Decimal
	Description string
	Code        string
	Hints       []string // known single-phase categories, used as prompt context
}
