package fee

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

func TestComputeSaleFee(t *testing.T) {
	tests := []struct {
		name  string
		gross int64
		want  int64
	}{
		{name: "zero", gross: 0, want: 80},
		{name: "round hundred", gross: 10000, want: 380},
		{name: "rounds up", gross: 4990, want: 230},
		{name: "rounds down", gross: 1010, want: 110},
		{name: "half rounds away from zero", gross: 50, want: 82},
		{name: "small sale", gross: 10, want: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSaleFee(tt.gross)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeSaleFee_Negative(t *testing.T) {
	_, err := ComputeSaleFee(-1)
	if !errors.Is(err, model.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestComputeSaleFee_Monotonic(t *testing.T) {
	prev, err := ComputeSaleFee(0)
	require.NoError(t, err)

	for gross := int64(1); gross <= 20000; gross++ {
		cur, err := ComputeSaleFee(gross)
		require.NoError(t, err)
		if cur < prev {
			t.Fatalf("fee(%d) = %d < fee(%d) = %d", gross, cur, gross-1, prev)
		}
		prev = cur
	}
}

func TestNetAmount_NeverNegative(t *testing.T) {
	for _, gross := range []int64{0, 1, 50, 79, 80, 83, 100, 4990, 1_000_000} {
		net, err := NetAmount(gross)
		require.NoError(t, err)
		if net < 0 {
			t.Fatalf("NetAmount(%d) = %d, want >= 0", gross, net)
		}
	}
}

func TestSale_KeepsRawFeeWhenNetClamped(t *testing.T) {
	b, err := Sale(50)
	require.NoError(t, err)

	assert.Equal(t, int64(82), b.Fee)
	assert.Equal(t, int64(0), b.Net)
}

func TestSale_Scenario(t *testing.T) {
	b, err := Sale(4990)
	require.NoError(t, err)

	assert.Equal(t, Breakdown{Gross: 4990, Fee: 230, Net: 4760}, b)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(190), Percent(4760, decimal.RequireFromString("0.04")))
	assert.Equal(t, int64(2), Percent(50, decimal.RequireFromString("0.03")))
	assert.Equal(t, int64(0), Percent(0, Rate))
}
