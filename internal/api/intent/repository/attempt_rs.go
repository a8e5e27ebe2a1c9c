package intentRepository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/internal/entity"
	contextPkg "JustNowBackend/pkg/context"
)

type attemptRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}

type attemptRecordDB struct {
	ID         string    `db:"id"`
	DeviceID   string    `db:"device_id"`
	AttemptKey string    `db:"attempt_key"`
	IntentID   string    `db:"intent_id"`
	Category   string    `db:"category"`
	TextInput  string    `db:"text_input"`
	Status     string    `db:"status"`
	ErrorCode  string    `db:"error_code"`
	Provider   string    `db:"provider"`
	LatencyMs  int64     `db:"latency_ms"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *attemptRepository) CreateAttempt(ctx context.Context, record entity.AttemptRecord) error {
	requestID := contextPkg.GetRequestID(ctx)

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	argsKV := map[string]interface{}{
		"id":          record.ID,
		"device_id":   record.DeviceID,
		"attempt_key": record.AttemptKey,
		"intent_id":   record.IntentID,
		"category":    record.Category,
		"text_input":  record.TextInput,
		"status":      string(record.Status),
		"error_code":  record.ErrorCode,
		"provider":    record.Provider,
		"latency_ms":  record.LatencyMs,
		"created_at":  record.CreatedAt,
		"updated_at":  record.UpdatedAt,
	}

	query, args, err := sqlx.Named(queryCreateAttempt, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateAttempt")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating attempt record")
		return err
	}

	return nil
}

func (r *attemptRepository) UpdateAttemptOutcome(ctx context.Context, record entity.AttemptRecord) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"id":         record.ID,
		"status":     string(record.Status),
		"intent_id":  record.IntentID,
		"category":   record.Category,
		"error_code": record.ErrorCode,
		"provider":   record.Provider,
		"latency_ms": record.LatencyMs,
		"updated_at": time.Now(),
	}

	query, args, err := sqlx.Named(queryUpdateAttemptOutcome, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for UpdateAttemptOutcome")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when updating attempt outcome")
		return err
	}

	return nil
}

func (r *attemptRepository) GetAttemptByKey(ctx context.Context, deviceID, attemptKey string) (entity.AttemptRecord, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var recordDB attemptRecordDB

	argsKV := map[string]interface{}{
		"device_id":   deviceID,
		"attempt_key": attemptKey,
	}

	query, args, err := sqlx.Named(queryGetAttemptByKey, argsKV)
	if err != nil {
		return entity.AttemptRecord{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&recordDB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.AttemptRecord{}, intent.ErrAttemptNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAttemptByKey execution err")
		return entity.AttemptRecord{}, err
	}

	return makeAttemptRecord(recordDB), nil
}

func (r *attemptRepository) GetAttemptsByDevice(ctx context.Context, deviceID string, limit, offset int) ([]entity.AttemptRecord, int, error) {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"device_id": deviceID,
		"limit":     limit,
		"offset":    offset,
	}

	query, args, err := sqlx.Named(queryGetAttemptsByDevice, argsKV)
	if err != nil {
		return nil, 0, err
	}
	query = r.q.Rebind(query)

	var rows []attemptRecordDB
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAttemptsByDevice execution err")
		return nil, 0, err
	}

	countQuery, countArgs, err := sqlx.Named(queryCountAttemptsByDevice, argsKV)
	if err != nil {
		return nil, 0, err
	}
	countQuery = r.q.Rebind(countQuery)

	var total int
	if err := r.q.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	records := make([]entity.AttemptRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, makeAttemptRecord(row))
	}

	return records, total, nil
}

func makeAttemptRecord(db attemptRecordDB) entity.AttemptRecord {
	return entity.AttemptRecord{
		ID:         db.ID,
		DeviceID:   db.DeviceID,
		AttemptKey: db.AttemptKey,
		IntentID:   db.IntentID,
		Category:   db.Category,
		TextInput:  db.TextInput,
		Status:     entity.AttemptStatus(db.Status),
		ErrorCode:  db.ErrorCode,
		Provider:   db.Provider,
		LatencyMs:  db.LatencyMs,
		CreatedAt:  db.CreatedAt,
		UpdatedAt:  db.UpdatedAt,
	}
}
