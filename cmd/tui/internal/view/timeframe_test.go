package view_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/splitpay/cmd/tui/internal/view"
)

func TestPeriodFor(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

	type testCase struct {
		name     string
		tf       view.Timeframe
		wantFrom string
		wantTo   string
	}

	tests := []testCase{
		{name: "Yesterday", tf: view.TimeframeYesterday, wantFrom: "2026-03-13", wantTo: "2026-03-14"},
		{name: "LastWeek", tf: view.TimeframeLastWeek, wantFrom: "2026-03-07", wantTo: "2026-03-14"},
		{name: "ThisMonth", tf: view.TimeframeThisMonth, wantFrom: "2026-03-01", wantTo: "2026-03-14"},
		{name: "LastMonth", tf: view.TimeframeLastMonth, wantFrom: "2026-02-01", wantTo: "2026-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := view.PeriodFor(tt.tf, now)

			assert.Equal(t, tt.wantFrom, view.FormatDate(p.From))
			assert.Equal(t, tt.wantTo, view.FormatDate(p.To))
			assert.NoError(t, p.Validate())
		})
	}
}
