package pipeline

import (
	"go.uber.org/zap"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// ZapExceptionHandler logs a stage panic with its sequence and moves on,
// the logging-backed default for ExceptionHandler (§5, SPEC_FULL ambient
// stack: structured logging via zap on every long-lived component).
type ZapExceptionHandler struct {
	log *zap.Logger
}

func NewZapExceptionHandler(log *zap.Logger) *ZapExceptionHandler {
	return &ZapExceptionHandler{log: log}
}

func (h *ZapExceptionHandler) HandleException(stage string, seq domain.Seq, cause any) {
	h.log.Error("pipeline stage fault",
		zap.String("stage", stage),
		zap.Int64("seq", int64(seq)),
		zap.Any("cause", cause),
	)
}
