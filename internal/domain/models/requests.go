package models

// Requests for the probability HTTP endpoints and the recalculation topic.

type CalculateRequest struct {
	// Optional subset of configured symbols; empty means all.
	Symbols []string `json:"symbols" validate:"omitempty,dive,required,max=16"`
}

type LatestRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,max=16"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=16"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type RecalcRequest struct {
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
	Symbols     []string `json:"symbols,omitempty"`
}
