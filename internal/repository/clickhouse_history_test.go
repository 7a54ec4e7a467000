package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"VitalWatch/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseHistory_LoadSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := int64(1_700_000_000_000)
	ts1 := time.UnixMilli(from).UTC()
	ts2 := time.UnixMilli(from + 1500).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT patient_id, category, value, ts FROM vitals_observations WHERE ts >= ? ORDER BY ts ASC LIMIT ?")).
		WithArgs(ts1, 100).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "category", "value", "ts"}).
			AddRow(uint32(1), "HeartRate", 88.0, ts1).
			AddRow(uint32(2), "Saturation", 93.5, ts2))

	h := NewClickHouseHistory(db, "vitals_observations")
	got, err := h.LoadSince(context.Background(), from, 100)
	require.NoError(t, err)
	assert.Equal(t, []models.Observation{
		{SubjectID: 1, Category: models.HeartRate, Value: 88, Timestamp: from},
		{SubjectID: 2, Category: models.Saturation, Value: 93.5, Timestamp: from + 1500},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseHistory_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT patient_id").WillReturnError(errors.New("table missing"))

	_, err = NewClickHouseHistory(db, "t").LoadSince(context.Background(), 0, 0)
	assert.ErrorContains(t, err, "query history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseHistory_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.NoError(t, NewClickHouseHistory(db, "t").Health(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationHistorySchema(t *testing.T) {
	stmts := ObservationHistorySchema("vitals_observations")
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS vitals_observations")
}
