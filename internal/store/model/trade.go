package model

import (
	"gorm.io/datatypes"
)

type TradeModel struct {
	ID            string         `gorm:"column:id;primaryKey;size:26"`
	Symbol        string         `gorm:"column:symbol;index"`
	Side          string         `gorm:"column:side"`
	Quantity      float64        `gorm:"column:quantity"`
	Price         float64        `gorm:"column:price"`
	StrategyTag   string         `gorm:"column:strategy"`
	OrderID       string         `gorm:"column:order_id"`
	Status        string         `gorm:"column:status"`
	Reason        string         `gorm:"column:reason"`
	TickID        string         `gorm:"column:tick_id"`
	ExtendedHours bool           `gorm:"column:extended_hours"`
	Meta          datatypes.JSON `gorm:"column:meta"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (TradeModel) TableName() string { return "trades" }
