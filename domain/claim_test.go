package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWarrantyStatusAt(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	base := Vehicle{
		VIN:         "1HGBH41JXMN109186",
		WarrantyEnd: now.AddDate(2, 0, 0),
		Mileage:     40000,
		MaxMileage:  160000,
	}

	t.Run("in coverage", func(t *testing.T) {
		v := base
		assert.Equal(t, WarrantyValid, v.WarrantyStatusAt(now))
	})

	t.Run("past end date", func(t *testing.T) {
		v := base
		v.WarrantyEnd = now.AddDate(-1, 0, 0)
		assert.Equal(t, WarrantyExpiredTime, v.WarrantyStatusAt(now))
	})

	t.Run("over mileage cap", func(t *testing.T) {
		v := base
		v.Mileage = 160001
		assert.Equal(t, WarrantyExpiredMileage, v.WarrantyStatusAt(now))
	})

	t.Run("time expiry wins over mileage expiry", func(t *testing.T) {
		v := base
		v.WarrantyEnd = now.AddDate(-1, 0, 0)
		v.Mileage = 160001
		assert.Equal(t, WarrantyExpiredTime, v.WarrantyStatusAt(now))
	})

	t.Run("zero mileage cap means uncapped", func(t *testing.T) {
		v := base
		v.MaxMileage = 0
		v.Mileage = 999999
		assert.Equal(t, WarrantyValid, v.WarrantyStatusAt(now))
	})
}

func TestIsValidation(t *testing.T) {
	err := &ValidationError{Field: "vin", Reason: "a VIN is required"}
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(errors.Join(errors.New("wrapped"), err)))
	assert.False(t, IsValidation(ErrVehicleNotFound))
	assert.False(t, IsValidation(nil))
}
