package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	sourcingdomain "github.com/bozorlab/marketpulse/internal/sourcing/domain"
	"gorm.io/gorm"
)

// EnsureCargoProviders seeds the cargo provider catalog for startup bootstrap.
// Rates are per-kg USD for the CN/EU to UZ corridors.
func EnsureCargoProviders(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	providers := []sourcingdomain.CargoProvider{
		{Name: "Kargo Ekspres (Xitoy)", Origin: "CN", Method: "CARGO", RatePerKg: 5.5, DeliveryDays: 18, IsActive: true},
		{Name: "Temir Yo'l (Xitoy)", Origin: "CN", Method: "RAIL", RatePerKg: 3.8, DeliveryDays: 15, IsActive: true},
		{Name: "Avia (Xitoy)", Origin: "CN", Method: "AVIA", RatePerKg: 6.5, DeliveryDays: 5, IsActive: true},
		{Name: "Avto (Yevropa)", Origin: "EU", Method: "AUTO", RatePerKg: 3.5, DeliveryDays: 14, IsActive: true},
		{Name: "Avia (Yevropa)", Origin: "EU", Method: "AVIA", RatePerKg: 8.0, DeliveryDays: 3, IsActive: true},
		{Name: "Turkiya orqali (Yevropa)", Origin: "EU", Method: "TURKEY", RatePerKg: 4.0, DeliveryDays: 10, IsActive: true},
	}

	ctx := context.Background()
	for _, provider := range providers {
		err := db.WithContext(ctx).Exec(`
			INSERT INTO cargo_providers (id, name, origin, method, rate_per_kg, delivery_days, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name, origin, method) DO NOTHING
		`,
			node.Generate(),
			provider.Name,
			provider.Origin,
			provider.Method,
			provider.RatePerKg,
			provider.DeliveryDays,
			provider.IsActive,
		).Error
		if err != nil {
			return err
		}
	}

	return nil
}
