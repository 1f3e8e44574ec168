package models

import "github.com/shopspring/decimal"

// Product is a read-only menu reference used for item names and foreign keys.
type Product struct {
	ID     int64           `db:"id" json:"id"`
	Name   string          `db:"name" json:"name"`
	Price  decimal.Decimal `db:"price" json:"price"`
	Active bool            `db:"active" json:"active"`
}
