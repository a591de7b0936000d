package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltwatch-alert/internal/models"
)

func setupMockAlertEventsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertEventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewAlertEventsRepository(db, logger)

	return db, mock, repo
}

func newTestEvent(deviceID string) *models.AlertEvent {
	return &models.AlertEvent{
		ID:            uuid.New().String(),
		DeviceID:      deviceID,
		RuleID:        uuid.New().String(),
		ConditionType: models.ConditionLowBattery,
		Level:         models.LevelWarning,
		Status:        models.StatusActive,
		Message:       "设备电量低: 15%",
		Value:         15,
		Threshold:     20,
		TriggeredAt:   time.Now(),
	}
}

// ============================================
// 冷却去重（原子检查-插入）测试
// ============================================

func TestInsertEventIfNotCoolingDown_Inserts(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	ctx := context.Background()
	event := newTestEvent(uuid.New().String())

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(event.DeviceID + ":" + string(event.ConditionType)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(event.DeviceID, event.ConditionType, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO alert_events`).
		WithArgs(
			event.ID, event.DeviceID, event.RuleID, event.ConditionType,
			event.Level, event.Status, event.Message, event.Value,
			event.Threshold, event.TriggeredAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := repo.InsertEventIfNotCoolingDown(ctx, event, 30*time.Minute)

	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventIfNotCoolingDown_Suppressed(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	ctx := context.Background()
	event := newTestEvent(uuid.New().String())

	// 窗口内已有事件：不插入，事务回滚，无错误
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(event.DeviceID + ":" + string(event.ConditionType)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(event.DeviceID, event.ConditionType, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	inserted, err := repo.InsertEventIfNotCoolingDown(ctx, event, 30*time.Minute)

	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventIfNotCoolingDown_StoreError(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	ctx := context.Background()
	event := newTestEvent(uuid.New().String())

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(event.DeviceID + ":" + string(event.ConditionType)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(event.DeviceID, event.ConditionType, sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	inserted, err := repo.InsertEventIfNotCoolingDown(ctx, event, 30*time.Minute)

	assert.Error(t, err)
	assert.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventIfNotCoolingDown_MissingDeviceID(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	event := newTestEvent("")
	inserted, err := repo.InsertEventIfNotCoolingDown(context.Background(), event, time.Minute)

	assert.Error(t, err)
	assert.False(t, inserted)
	assert.Contains(t, err.Error(), "device_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 状态生命周期测试
// ============================================

func TestAcknowledgeEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(eventID, models.StatusAcknowledged, models.StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AcknowledgeEvent(context.Background(), eventID)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeEvent_NotActive(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	// 已 resolved 的事件不允许回到 acknowledged
	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(eventID, models.StatusAcknowledged, models.StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AcknowledgeEvent(context.Background(), eventID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found or not active")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(eventID, models.StatusResolved, models.StatusActive, models.StatusAcknowledged).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResolveEvent(context.Background(), eventID)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveEvent_AlreadyResolved(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE alert_events`).
		WithArgs(eventID, models.StatusResolved, models.StatusActive, models.StatusAcknowledged).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ResolveEvent(context.Background(), eventID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already resolved")

	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 查询测试
// ============================================

func TestGetMostRecentEvent_Found(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	deviceID := uuid.New().String()
	eventID := uuid.New().String()
	ruleID := uuid.New().String()
	triggeredAt := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "device_id", "rule_id", "condition_type", "level", "status",
		"message", "value", "threshold", "triggered_at", "acknowledged_at", "resolved_at",
	}).AddRow(
		eventID, deviceID, ruleID, "low_battery", "warning", "resolved",
		"设备电量低: 15%", 15.0, 20.0, triggeredAt, nil, triggeredAt,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(deviceID, models.ConditionLowBattery).
		WillReturnRows(rows)

	event, err := repo.GetMostRecentEvent(context.Background(), deviceID, models.ConditionLowBattery)

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, eventID, event.ID)
	// 冷却判断与状态无关，resolved 的事件同样会被返回
	assert.Equal(t, models.StatusResolved, event.Status)
	assert.NotNil(t, event.ResolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMostRecentEvent_NoHistory(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	deviceID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(deviceID, models.ConditionHighTemperature).
		WillReturnError(sql.ErrNoRows)

	event, err := repo.GetMostRecentEvent(context.Background(), deviceID, models.ConditionHighTemperature)

	require.NoError(t, err)
	assert.Nil(t, event)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsByDevice_Success(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	deviceID := uuid.New().String()
	triggeredAt := time.Now()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(deviceID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{
		"id", "device_id", "rule_id", "condition_type", "level", "status",
		"message", "value", "threshold", "triggered_at", "acknowledged_at", "resolved_at",
	}).AddRow(
		uuid.New().String(), deviceID, uuid.New().String(), "low_battery", "warning", "active",
		"设备电量低: 15%", 15.0, 20.0, triggeredAt, nil, nil,
	).AddRow(
		uuid.New().String(), deviceID, uuid.New().String(), "high_temperature", "critical", "active",
		"设备温度过高: 50.2°C", 50.2, 45.0, triggeredAt, nil, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(deviceID, 20, 0).
		WillReturnRows(rows)

	events, total, err := repo.ListEventsByDevice(context.Background(), deviceID, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, events, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}
