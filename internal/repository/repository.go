// Package repository defines appointment persistence and an in-memory implementation.
package repository

import (
	"context"
	"errors"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by backends that enforce one active appointment per slot.
	ErrSlotTaken = errors.New("slot already has an active appointment")
)

// Repository stores committed appointments.
//
// AppendRecord assigns Number, CreatedAt and a pending status when unset.
// Lookups by national id prefer the most recent active appointment and fall
// back to the most recent one of any status. Status updates by national id
// only touch the most recent active appointment.
type Repository interface {
	AppendRecord(ctx context.Context, a *models.Appointment) (int64, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.Appointment, error)
	FindByNumber(ctx context.Context, number int64) (*models.Appointment, error)
	UpdateStatusByNationalID(ctx context.Context, nationalID, status string) (*models.Appointment, error)
	UpdateStatusByNumber(ctx context.Context, number int64, status string) (*models.Appointment, error)
	ListBookedSlotsForDate(ctx context.Context, date string) ([]string, error)
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

// PickLatest returns the newest active appointment, or the newest of any status.
// Input is expected in insertion order.
func PickLatest(list []models.Appointment) (*models.Appointment, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].IsActive() {
			a := list[i]
			return &a, true
		}
	}
	if len(list) == 0 {
		return nil, false
	}
	a := list[len(list)-1]
	return &a, true
}
