package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

type failingLister struct{}

func (failingLister) ListAppointments(context.Context) ([]models.Appointment, error) {
	return nil, errors.New("backend down")
}

func TestWriteAppointments(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	for _, a := range []models.Appointment{
		{PatientName: "Ana Pérez", NationalID: "1234567890", Date: "10/10/2025", Time: "09:00", Notes: "control"},
		{PatientName: "Luis Mora", NationalID: "0987654321", Date: "10/10/2025", Time: "10:00"},
		{PatientName: "Eva Ríos", NationalID: "1111111111", Date: "11/10/2025", Time: "09:00"},
	} {
		a := a
		_, err := repo.AppendRecord(ctx, &a)
		require.NoError(t, err)
	}
	_, err := repo.UpdateStatusByNumber(ctx, 2, models.StatusConfirmed)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := WriteAppointments(ctx, repo, Filter{Date: "10/10/2025"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{appointmentsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(appointmentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, appointmentColumns, rows[0])
	assert.Equal(t, []string{"1", "Ana Pérez", "1234567890"}, rows[1][:3])
	assert.Equal(t, "pendiente", rows[1][7])
	assert.Equal(t, "control", rows[1][8])
	assert.Equal(t, "confirmada", rows[2][7])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Estado", "Citas"}, {"confirmada", "1"}, {"pendiente", "1"}, {"total", "2"}}, summary)
}

func TestWriteAppointments_ListError(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteAppointments(context.Background(), failingLister{}, Filter{}, &buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
