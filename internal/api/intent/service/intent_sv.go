package intentService

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/internal/entity"
	"JustNowBackend/pkg/classifier"
	contextPkg "JustNowBackend/pkg/context"
	"JustNowBackend/pkg/idempotency"
	"JustNowBackend/pkg/log"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/rollback"
	"JustNowBackend/pkg/uischema"
)

// cachedOutcome is what the idempotency cache stores per attempt key: the
// terminal status and body, success and error alike, replayed verbatim.
type cachedOutcome struct {
	Status int                 `json:"status"`
	Body   jsoniter.RawMessage `json:"body"`
}

// generatedEnvelope mirrors the model's raw response before the ui_payload
// goes through schema validation.
type generatedEnvelope struct {
	IntentID        string                 `json:"intent_id"`
	Category        string                 `json:"category"`
	UISchemaVersion string                 `json:"ui_schema_version"`
	Slots           map[string]interface{} `json:"slots"`
	UIPayload       jsoniter.RawMessage    `json:"ui_payload"`
}

func (s *intentService) ProcessIntent(ctx context.Context, deviceID, attemptKey, scenario string, req intent.ProcessIntentRequest) (*Outcome, error) {
	requestID := contextPkg.GetRequestID(ctx)
	startedAt := time.Now()

	if err := s.utils.ValidateAttemptKey(attemptKey); err != nil {
		return nil, intent.ErrInvalidIdempotency
	}

	// Confidence gate: a recognizer score below the ambiguous floor never
	// reaches any downstream logic, including the idempotency reserve.
	if req.ConfidenceScore != nil {
		gate := classifier.Classify(entity.Intent{
			Category:        entity.CategoryUnknown,
			ConfidenceScore: *req.ConfidenceScore,
		})
		switch gate.Disposition {
		case classifier.Rejected:
			return s.rejectedOutcome(requestID), nil
		case classifier.Ambiguous:
			return s.confirmationOutcome(requestID, req)
		}
	}

	reservation, err := s.idemCache.GetOrReserve(ctx, deviceID, attemptKey)
	if err != nil {
		return s.failClosedOutcome(requestID, err), nil
	}

	if reservation.Hit {
		var cached cachedOutcome
		if unmarshalErr := s.json.UnmarshalFromString(reservation.Response, &cached); unmarshalErr != nil {
			s.log.WithFields(log.Fields{
				"request_id": requestID,
				"error":      unmarshalErr.Error(),
			}).Error("Corrupt idempotency cache entry")
			return s.failClosedOutcome(requestID, idempotency.ErrStoreUnavailable), nil
		}

		s.log.WithFields(log.Fields{
			"request_id":  requestID,
			"device_id":   deviceID,
			"attempt_key": attemptKey,
		}).Info("Idempotency cache hit; replaying terminal response")

		outcome := &Outcome{Status: cached.Status, Body: cached.Body, CacheHit: true}
		if cached.Status == http.StatusOK {
			var resp intent.GenUIResponse
			if s.json.Unmarshal(cached.Body, &resp) == nil {
				outcome.Response = &resp
			}
		}
		return outcome, nil
	}

	record := entity.AttemptRecord{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		AttemptKey: attemptKey,
		TextInput:  req.TextInput,
		Status:     entity.AttemptStatusPending,
		CreatedAt:  startedAt,
	}
	s.createAttemptRecord(ctx, record)

	outcome := s.generateAndValidate(ctx, requestID, scenario, req)
	latency := time.Since(startedAt).Milliseconds()

	// Commit before releasing the session: a duplicate blocked on the
	// reserve must observe this exact terminal response.
	s.commitOutcome(ctx, deviceID, attemptKey, outcome)

	record.Status = entity.AttemptStatusCompleted
	record.LatencyMs = latency
	if outcome.Envelope != nil {
		record.Status = entity.AttemptStatusFailed
		record.ErrorCode = outcome.Envelope.ErrorCode
	}
	if outcome.Response != nil {
		record.Provider = outcome.provider
		record.IntentID = outcome.Response.IntentID
		record.Category = outcome.Response.Category
	}
	s.updateAttemptRecord(ctx, record)

	return outcome, nil
}

// generateAndValidate drives the model call under the retry controller and
// gates the result through the schema validator.
func (s *intentService) generateAndValidate(ctx context.Context, requestID, scenario string, req intent.ProcessIntentRequest) *Outcome {
	var (
		parsed       generatedEnvelope
		payload      *uischema.UIPayload
		providerUsed string
	)

	err := s.controller.Execute(ctx, true, func(attemptCtx context.Context, attempt retrypolicy.Attempt) error {
		raw, generator, genErr := s.generateRaw(attemptCtx, scenario, req.TextInput, attempt)
		if genErr != nil {
			return genErr
		}
		providerUsed = generator

		cleaned, cleanErr := s.utils.CleanModelJSON(raw)
		if cleanErr != nil {
			s.watcher.Record(rollback.OutcomeSchemaViolation)
			return retrypolicy.NewError(retrypolicy.KindSchemaViolation, cleanErr)
		}

		if unmarshalErr := s.json.UnmarshalFromString(cleaned, &parsed); unmarshalErr != nil {
			s.watcher.Record(rollback.OutcomeSchemaViolation)
			s.archiveRejected(requestID, []byte(cleaned))
			return retrypolicy.NewError(retrypolicy.KindSchemaViolation, unmarshalErr)
		}

		validated, validateErr := s.validator.Validate(parsed.UIPayload)
		if validateErr != nil {
			s.watcher.Record(rollback.OutcomeSchemaViolation)
			s.archiveRejected(requestID, parsed.UIPayload)
			s.log.WithFields(log.Fields{
				"request_id": requestID,
				"error":      validateErr.Error(),
				"provider":   providerUsed,
			}).Warn("Generated payload failed schema validation")
			return retrypolicy.NewError(retrypolicy.KindSchemaViolation, validateErr)
		}

		payload = validated
		return nil
	})

	if err != nil {
		if retrypolicy.KindOf(err) != retrypolicy.KindSchemaViolation {
			s.watcher.Record(rollback.OutcomeOtherFailure)
		}
		return s.envelopeOutcome(requestID, err)
	}

	s.watcher.Record(rollback.OutcomeSuccess)

	// Slot completeness runs on the model's interpretation: a SERVICE
	// intent without a destination cannot be executed no matter how clean
	// the widget tree is.
	category := entity.IntentCategory(parsed.Category)
	if !category.Valid() {
		category = entity.CategoryUnknown
	}
	slots := mergeSlots(req.Slots, parsed.Slots)
	slotCheck := classifier.Classify(entity.Intent{
		Category:        category,
		ConfidenceScore: 1.0,
		Slots:           slots,
	})
	if slotCheck.Disposition == classifier.Invalid {
		return s.missingSlotsOutcome(requestID, slotCheck.MissingSlots)
	}

	intentID := parsed.IntentID
	if intentID == "" {
		intentID = uuid.NewString()
	}

	response := &intent.GenUIResponse{
		IntentID:        intentID,
		Category:        string(category),
		UISchemaVersion: intent.UISchemaVersion,
		Slots:           slots,
		UIPayload:       payload,
	}

	body, marshalErr := s.json.Marshal(response)
	if marshalErr != nil {
		return s.envelopeOutcome(requestID, retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable, marshalErr))
	}

	return &Outcome{
		Status:   http.StatusOK,
		Body:     body,
		Response: response,
		provider: providerUsed,
	}
}

func (s *intentService) generateRaw(ctx context.Context, scenario, textInput string, attempt retrypolicy.Attempt) (string, string, error) {
	if scenario != "" {
		raw, err := s.mockScenario(scenario, textInput)
		return raw, "mock/" + scenario, err
	}

	generator := s.primary
	if attempt.UseFallbackProvider || generator == nil {
		generator = s.fallback
	}
	if generator == nil {
		return "", "", retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable,
			errors.New("no generation provider configured"))
	}

	raw, err := generator.GenerateUI(ctx, textInput, attempt.Deterministic)
	return raw, generator.ProviderName(), err
}

func (s *intentService) CancelAttempt(ctx context.Context, deviceID, attemptKey string) error {
	requestID := contextPkg.GetRequestID(ctx)

	// The reservation is dropped so no late response is ever replayed for
	// this key, but the attempt row stays: canceled, still billable.
	if err := s.idemCache.Release(ctx, deviceID, attemptKey); err != nil {
		s.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to release idempotency reservation on cancel")
	}

	client, err := s.intentRepo.NewClient(false)
	if err != nil {
		return err
	}

	record, err := client.Attempts.GetAttemptByKey(ctx, deviceID, attemptKey)
	if err != nil {
		if errors.Is(err, intent.ErrAttemptNotFound) {
			return nil
		}
		return err
	}

	record.Status = entity.AttemptStatusCanceledBillable
	return client.Attempts.UpdateAttemptOutcome(ctx, record)
}

func (s *intentService) GetHistory(ctx context.Context, deviceID string, page, limit int) (*intent.HistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	client, err := s.intentRepo.NewClient(false)
	if err != nil {
		return nil, err
	}

	records, total, err := client.Attempts.GetAttemptsByDevice(ctx, deviceID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	items := make([]intent.AttemptHistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, intent.AttemptHistoryItem{
			ID:        record.ID,
			TextInput: record.TextInput,
			Category:  record.Category,
			Status:    string(record.Status),
			ErrorCode: record.ErrorCode,
			Provider:  record.Provider,
			LatencyMs: record.LatencyMs,
			CreatedAt: record.CreatedAt,
		})
	}

	return &intent.HistoryResponse{Attempts: items, Total: total}, nil
}

func (s *intentService) commitOutcome(ctx context.Context, deviceID, attemptKey string, outcome *Outcome) {
	entry, err := s.json.MarshalToString(cachedOutcome{
		Status: outcome.Status,
		Body:   outcome.Body,
	})
	if err != nil {
		s.log.WithFields(log.Fields{"error": err.Error()}).Error("Failed to marshal idempotency entry")
		return
	}

	if err := s.idemCache.Commit(ctx, deviceID, attemptKey, entry); err != nil {
		s.log.WithFields(log.Fields{
			"device_id":   deviceID,
			"attempt_key": attemptKey,
			"error":       err.Error(),
		}).Error("Failed to commit idempotency entry")
	}
}

func (s *intentService) createAttemptRecord(ctx context.Context, record entity.AttemptRecord) {
	client, err := s.intentRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(log.Fields{"error": err.Error()}).Error("Failed to open repository client")
		return
	}
	if err := client.Attempts.CreateAttempt(ctx, record); err != nil {
		s.log.WithFields(log.Fields{"error": err.Error()}).Error("Failed to persist attempt record")
	}
}

func (s *intentService) updateAttemptRecord(ctx context.Context, record entity.AttemptRecord) {
	client, err := s.intentRepo.NewClient(false)
	if err != nil {
		return
	}
	if err := client.Attempts.UpdateAttemptOutcome(ctx, record); err != nil {
		s.log.WithFields(log.Fields{"error": err.Error()}).Error("Failed to update attempt record")
	}
}

func (s *intentService) archiveRejected(requestID string, payload []byte) {
	if s.s3Client == nil || len(payload) == 0 {
		return
	}
	key, err := s.s3Client.ArchiveRejectedPayload(requestID, payload)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to archive rejected payload")
		return
	}

	// Operators triage violations from logs; a short-lived link saves a
	// trip to the bucket console.
	sampleURL, err := s.s3Client.PresignUrl(key)
	if err != nil {
		sampleURL = key
	}
	s.log.WithFields(log.Fields{
		"request_id": requestID,
		"sample_url": sampleURL,
	}).Info("Archived rejected payload")
}

func mergeSlots(fromRequest, fromModel map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(fromRequest)+len(fromModel))
	for k, v := range fromRequest {
		merged[k] = v
	}
	for k, v := range fromModel {
		merged[k] = v
	}
	return merged
}
