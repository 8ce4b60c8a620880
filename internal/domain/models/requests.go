package models

import "strings"

// Requests for status HTTP endpoints. Defined in domain for consistency and reuse.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,uppercase"`
}

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,uppercase"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

// Normalize uppercases the symbol so lookups match configured keys.
func (r *SymbolRequest) Normalize() { r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol)) }

func (r *DecisionsRequest) Normalize() { r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol)) }
