package escrow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSplitReversal(t *testing.T) {
	d := decimal.NewFromInt

	s := SplitReversal(d(100), d(250))
	assert.True(t, s.FromWallet.Equal(d(100)))
	assert.True(t, s.FromReceivable.IsZero())

	s = SplitReversal(d(100), d(30))
	assert.True(t, s.FromWallet.Equal(d(30)))
	assert.True(t, s.FromReceivable.Equal(d(70)))

	s = SplitReversal(d(100), d(-20))
	assert.True(t, s.FromWallet.IsZero())
	assert.True(t, s.FromReceivable.Equal(d(100)))
}
