package models

// All lists every persisted model in dependency order. Used for sqlite schema
// bootstrapping in local dev and tests; Postgres is migrated with goose.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&StockItem{},
		&StockTransaction{},
		&StockAlert{},
		&Cart{},
		&CartLine{},
		&Coupon{},
		&CouponUsage{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
