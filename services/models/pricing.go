package models

import "errors"

// ErrPricingUnavailable signals that a cost could not be computed because
// a token count or a configured price was missing. It is distinct from an
// invocation error: the completion may well have succeeded.
var ErrPricingUnavailable = errors.New("pricing unavailable")

// Cost computes the USD cost of an invocation from token counts and
// per-token prices. Any missing operand yields ErrPricingUnavailable;
// costs are never silently defaulted to zero.
func Cost(inputTokens, outputTokens *int, inputTokenCost, outputTokenCost *float64) (*float64, error) {
	if inputTokens == nil || outputTokens == nil {
		return nil, ErrPricingUnavailable
	}
	if inputTokenCost == nil || outputTokenCost == nil {
		return nil, ErrPricingUnavailable
	}

	cost := float64(*inputTokens)**inputTokenCost + float64(*outputTokens)**outputTokenCost
	return &cost, nil
}
