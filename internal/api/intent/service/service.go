package intentService

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"JustNowBackend/internal/api/intent"
	intentRepository "JustNowBackend/internal/api/intent/repository"
	"JustNowBackend/pkg/idempotency"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/rollback"
	"JustNowBackend/pkg/s3"
	"JustNowBackend/pkg/uischema"
	"JustNowBackend/pkg/utils"
)

// Generator is the downstream UI generation boundary. Both the Gemini and
// the OpenAI-compatible clients satisfy it.
type Generator interface {
	GenerateUI(ctx context.Context, userText string, deterministic bool) (string, error)
	ProviderName() string
}

// Outcome is the terminal result of one processed attempt: the exact wire
// body plus enough structure for in-process callers (the interaction
// orchestrator) to avoid re-parsing it.
type Outcome struct {
	Status   int
	Body     []byte
	Response *intent.GenUIResponse
	Envelope *retrypolicy.ErrorEnvelope
	CacheHit bool

	provider string
}

type IIntentService interface {
	ProcessIntent(ctx context.Context, deviceID, attemptKey, scenario string, req intent.ProcessIntentRequest) (*Outcome, error)
	CancelAttempt(ctx context.Context, deviceID, attemptKey string) error
	GetHistory(ctx context.Context, deviceID string, page, limit int) (*intent.HistoryResponse, error)
}

type intentService struct {
	log        *logrus.Logger
	intentRepo intentRepository.Repository
	idemCache  idempotency.ICache
	controller retrypolicy.IController
	watcher    rollback.IWatcher
	validator  uischema.IValidator
	utils      utils.IUtils
	primary    Generator
	fallback   Generator
	s3Client   s3.ItfS3
	json       jsoniter.API
}

func NewIntentService(
	log *logrus.Logger,
	intentRepo intentRepository.Repository,
	idemCache idempotency.ICache,
	controller retrypolicy.IController,
	watcher rollback.IWatcher,
	validator uischema.IValidator,
	utilsInstance utils.IUtils,
	primary Generator,
	fallback Generator,
	s3Client s3.ItfS3,
) IIntentService {
	return &intentService{
		log:        log,
		intentRepo: intentRepo,
		idemCache:  idemCache,
		controller: controller,
		watcher:    watcher,
		validator:  validator,
		utils:      utilsInstance,
		primary:    primary,
		fallback:   fallback,
		s3Client:   s3Client,
		json:       jsoniter.ConfigCompatibleWithStandardLibrary,
	}
}
