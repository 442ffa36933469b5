package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"econindex/internal/alerting"
	"econindex/internal/anomaly"
	"econindex/internal/model"
)

// SimulateAlert sends a synthetic discontinuity report through the configured channel.
func (a *App) SimulateAlert(ctx context.Context, country string, year int, from, to decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}
	if !from.IsPositive() || !to.IsPositive() {
		return errors.New("values must be positive")
	}

	hi, lo := to, from
	if lo.GreaterThan(hi) {
		hi, lo = lo, hi
	}
	finding := anomaly.Finding{
		Country:   country,
		Indicator: model.IndicatorWage,
		Column:    model.ColumnCommon,
		FromYear:  year - 1,
		ToYear:    year,
		From:      from,
		To:        to,
		Ratio:     hi.Div(lo),
	}

	return notifier.Notify(ctx, alerting.Notification{
		RunID:         "simulated-" + uuid.NewString(),
		At:            time.Now().UTC(),
		Findings:      []anomaly.Finding{finding},
		AdditionalMsg: "simulated report",
	})
}
