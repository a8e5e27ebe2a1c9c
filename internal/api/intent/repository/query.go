package intentRepository

const queryCreateAttempt = `
INSERT INTO intent_attempts (
	id, device_id, attempt_key, intent_id, category, text_input, status,
	error_code, provider, latency_ms, created_at, updated_at
) VALUES (
	:id, :device_id, :attempt_key, :intent_id, :category, :text_input, :status,
	:error_code, :provider, :latency_ms, :created_at, :updated_at
)`

const queryUpdateAttemptOutcome = `
UPDATE intent_attempts
SET status = :status,
	intent_id = :intent_id,
	category = :category,
	error_code = :error_code,
	provider = :provider,
	latency_ms = :latency_ms,
	updated_at = :updated_at
WHERE id = :id`

const queryGetAttemptByKey = `
SELECT id, device_id, attempt_key, intent_id, category, text_input, status,
	error_code, provider, latency_ms, created_at, updated_at
FROM intent_attempts
WHERE device_id = :device_id AND attempt_key = :attempt_key`

const queryGetAttemptsByDevice = `
SELECT id, device_id, attempt_key, intent_id, category, text_input, status,
	error_code, provider, latency_ms, created_at, updated_at
FROM intent_attempts
WHERE device_id = :device_id
ORDER BY created_at DESC
LIMIT :limit OFFSET :offset`

const queryCountAttemptsByDevice = `
SELECT COUNT(*) FROM intent_attempts WHERE device_id = :device_id`
