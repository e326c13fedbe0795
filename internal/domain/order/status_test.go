package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to paid", StatusPendingPayment, StatusInCorso, true},
		{"pending to failed", StatusPendingPayment, StatusPaymentFailed, true},
		{"pending to cancelled", StatusPendingPayment, StatusCancellato, true},
		{"paid to shipped", StatusInCorso, StatusSpedito, true},
		{"shipped to delivered", StatusSpedito, StatusCompletato, true},
		{"failed never recovers", StatusPaymentFailed, StatusInCorso, false},
		{"no backward from paid", StatusInCorso, StatusPendingPayment, false},
		{"no skip to delivered", StatusPendingPayment, StatusCompletato, false},
		{"delivered is terminal", StatusCompletato, StatusSpedito, false},
		{"cancelled is terminal", StatusCancellato, StatusInCorso, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(StatusPendingPayment, StatusInCorso))

	err := CheckTransition(StatusPaymentFailed, StatusInCorso)
	var itErr *IllegalTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPaymentFailed, itErr.From)
	assert.Equal(t, StatusInCorso, itErr.To)
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusSpedito.Valid())
	assert.False(t, Status("refunded").Valid())
	assert.False(t, Status("").Valid())
}
