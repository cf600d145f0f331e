package models

// All lists every persisted model, in dependency order, for AutoMigrate in tests and tooling.
func All() []any {
	return []any{
		&Supplier{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Delivery{},
		&InventoryLog{},
		&NotificationLog{},
		&Setting{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
