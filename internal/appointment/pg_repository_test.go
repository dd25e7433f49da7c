package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func TestScanUser(t *testing.T) {
	id := uuid.New()
	row := rowFunc(func(dest ...any) error {
		require.Len(t, dest, 5)
		*dest[0].(*uuid.UUID) = id
		*dest[1].(*string) = "Lisa Cuddy"
		*dest[2].(*string) = "cuddy@clinic.test"
		*dest[3].(*string) = "Administrator"
		*dest[4].(*bool) = true
		return nil
	})

	u, err := scanUser(row, ErrUserNotFound)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, notify.RoleAdmin, u.Role)
	assert.True(t, u.Active)
}

func TestScanHelpers_NoRows(t *testing.T) {
	empty := rowFunc(func(...any) error { return pgx.ErrNoRows })

	_, err := scanUser(empty, ErrPatientNotFound)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = scanAppointment(empty)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = scanDetail(empty)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestScanHelpers_PassThroughErrors(t *testing.T) {
	broken := rowFunc(func(...any) error { return errBoom })

	_, err := scanAppointment(broken)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, errors.Is(err, ErrAppointmentNotFound))
}

func TestScanDetail_ColumnCount(t *testing.T) {
	var got int
	row := rowFunc(func(dest ...any) error {
		got = len(dest)
		*dest[len(dest)-3].(*string) = "Gregory House"
		return nil
	})

	d, err := scanDetail(row)
	require.NoError(t, err)
	assert.Equal(t, 17, got)
	assert.Equal(t, "Gregory House", d.DoctorName)
}
