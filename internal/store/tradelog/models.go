package tradelog

import "time"

// TradeModel is one realized close (full or partial take-profit).
type TradeModel struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol     string    `gorm:"column:symbol;size:32;index"`
	Side       string    `gorm:"column:side;size:8"`
	EntryPrice float64   `gorm:"column:entry_price"`
	ExitPrice  float64   `gorm:"column:exit_price"`
	Size       float64   `gorm:"column:size"`
	PnL        float64   `gorm:"column:pnl"`
	PnLPct     float64   `gorm:"column:pnl_pct"`
	Partial    bool      `gorm:"column:partial"`
	Reason     string    `gorm:"column:reason;size:128"`
	OpenedAt   time.Time `gorm:"column:opened_at"`
	ClosedAt   time.Time `gorm:"column:closed_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

// EquityPointModel samples the account balance over time for the dashboard
// equity curve.
type EquityPointModel struct {
	ID      uint      `gorm:"column:id;primaryKey;autoIncrement"`
	At      time.Time `gorm:"column:at;index"`
	Balance float64   `gorm:"column:balance"`
}

func (EquityPointModel) TableName() string { return "equity_points" }
