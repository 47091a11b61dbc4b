package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"stakeflow/internal/database"
	"stakeflow/internal/models"
	"stakeflow/internal/service"
)

// maxBodyBytes bounds the size of a posted transaction record
const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers
type Handler struct {
	transactions *service.TransactionService
	fees         *service.FeeService
	network      string
	logger       *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	transactions *service.TransactionService,
	fees *service.FeeService,
	network string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		transactions: transactions,
		fees:         fees,
		network:      network,
		logger:       logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
		Network: h.network,
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Transactions ====================

// HandleCreateTransaction handles POST /api/transactions
// Stores a confirmed stake record pushed by a client
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var record models.TransactionRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&record); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.transactions.Record(r.Context(), record)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, "Invalid transaction record", err)
		return
	case errors.Is(err, database.ErrDuplicateTransaction):
		respondError(w, http.StatusConflict, "Transaction already recorded", nil)
		return
	default:
		h.logger.Error("Failed to record transaction",
			zap.String("tx_hash", record.TxHash),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to record transaction", err)
		return
	}

	respondJSON(w, http.StatusCreated, newTransactionResponse(tx))
}

// HandleGetTransaction handles GET /api/transactions/{txHash}
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txHash := mux.Vars(r)["txHash"]

	tx, err := h.transactions.GetByHash(r.Context(), txHash)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, "Invalid transaction hash", err)
		return
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	default:
		h.logger.Error("Failed to get transaction",
			zap.String("tx_hash", txHash),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get transaction", err)
		return
	}

	respondJSON(w, http.StatusOK, newTransactionResponse(tx))
}

// HandleGetUserTransactions handles GET /api/transactions/user/{address}
// Supports limit and offset query parameters
func (h *Handler) HandleGetUserTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid offset", err)
		return
	}

	limit, offset = service.NormalizePage(limit, offset)

	txs, err := h.transactions.ListByUser(r.Context(), address, limit, offset)
	if errors.Is(err, service.ErrInvalidRecord) {
		respondError(w, http.StatusBadRequest, "Invalid address", err)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get user transactions",
			zap.String("address", address),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get user transactions", err)
		return
	}

	response := UserTransactionsResponse{
		Transactions: make([]TransactionResponse, 0, len(txs)),
		Limit:        limit,
		Offset:       offset,
	}
	for i := range txs {
		response.Transactions = append(response.Transactions, newTransactionResponse(&txs[i]))
	}

	respondJSON(w, http.StatusOK, response)
}

// ==================== Protocol Options ====================

// HandleGetOptions handles GET /api/options
func (h *Handler) HandleGetOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.transactions.ProtocolOptions(r.Context())
	if err != nil {
		h.logger.Error("Failed to get protocol options", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get protocol options", err)
		return
	}

	respondJSON(w, http.StatusOK, ProtocolOptionsResponse{
		Network: h.network,
		Options: options,
	})
}

// ==================== Fee Preview ====================

// HandleFeePreview handles GET /api/fees/preview?amount=&token=
func (h *Handler) HandleFeePreview(w http.ResponseWriter, r *http.Request) {
	amount := r.URL.Query().Get("amount")
	token := models.Token(r.URL.Query().Get("token"))

	if amount == "" {
		respondError(w, http.StatusBadRequest, "amount is required", nil)
		return
	}
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required", nil)
		return
	}

	calc, err := h.fees.CalculateStakeFee(r.Context(), token, amount)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	case errors.Is(err, service.ErrFeeSourceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Fee preview unavailable", err)
		return
	default:
		h.logger.Error("Failed to calculate fee",
			zap.String("token", string(token)),
			zap.String("amount", amount),
			zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to calculate fee", err)
		return
	}

	respondJSON(w, http.StatusOK, FeePreviewResponse{
		Token:          calc.Token,
		Amount:         calc.Amount,
		FeeBasisPoints: calc.FeeBasisPoints,
		Fee:            calc.Fee(),
		Net:            calc.Net(),
		FeeBaseUnits:   calc.FeeBaseUnits.String(),
		NetBaseUnits:   calc.NetBaseUnits.String(),
	})
}

// ==================== Helper Functions ====================

// queryInt parses an optional integer query parameter; missing means 0
func queryInt(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
