package payments

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuotationTransitions(t *testing.T) {
	cases := []struct {
		from, to QuotationState
		allowed  bool
	}{
		{QuotationPending, QuotationPaid, true},
		{QuotationAccepted, QuotationPaid, true},
		{QuotationPaid, QuotationConfirmed, true},
		{QuotationPaid, QuotationRejected, true},
		{QuotationRejected, QuotationPaid, false},
		{QuotationConfirmed, QuotationRejected, false},
		{QuotationPending, QuotationConfirmed, false},
		{QuotationPaid, QuotationPaid, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestValidQuotationState(t *testing.T) {
	require.True(t, ValidQuotationState(QuotationPaid))
	require.False(t, ValidQuotationState("approved"))
	require.False(t, ValidQuotationState(""))
}
