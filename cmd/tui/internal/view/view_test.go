package view_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/splitpay/cmd/tui/internal/view"
)

var (
	_ view.Screen = view.PayoutsModel{}
	_ view.Screen = view.SettleModel{}
	_ view.Screen = view.OrdersModel{}
	_ view.Screen = view.ImportModel{}
	_ view.Screen = view.RefundsModel{}
)

func TestFrame(t *testing.T) {
	out := view.Frame(view.NewRefundsModel(nil))

	assert.Contains(t, out, "Splitpay › Refunds")
	assert.Contains(t, out, "status: pending")
	assert.Contains(t, out, "f: flush to provider")
}

func TestBack(t *testing.T) {
	assert.Equal(t, view.BackMsg{}, view.Back())
}
