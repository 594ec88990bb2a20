package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/converter"
)

// ConverterHandler exposes the currency and metals converter
type ConverterHandler struct {
	logger *slog.Logger
}

// NewConverterHandler creates a new converter handler
func NewConverterHandler(logger *slog.Logger) *ConverterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConverterHandler{logger: logger}
}

// ConvertRequest represents a conversion request
type ConvertRequest struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

// Rates handles GET /api/converter
func (h *ConverterHandler) Rates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, converter.Table())
}

// Convert handles POST /api/converter/convert
func (h *ConverterHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := converter.Convert(req.Amount, req.From, req.To)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
