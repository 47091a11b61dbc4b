package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"stakeflow/internal/config"
	"stakeflow/internal/database"
	"stakeflow/internal/models"
	"stakeflow/internal/service"
)

const testTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

type memoryStore struct {
	txs     []*models.StoredTransaction
	options []models.ProtocolOption
}

func (s *memoryStore) CreateTransaction(_ context.Context, tx *models.StoredTransaction) error {
	for _, existing := range s.txs {
		if strings.EqualFold(existing.TxHash, tx.TxHash) {
			return fmt.Errorf("%w: %s", database.ErrDuplicateTransaction, tx.TxHash)
		}
	}
	tx.ID = fmt.Sprintf("65f1c0ffee%02d", len(s.txs)+1)
	tx.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.txs = append(s.txs, tx)
	return nil
}

func (s *memoryStore) GetTransactionByHash(_ context.Context, txHash string) (*models.StoredTransaction, error) {
	for _, tx := range s.txs {
		if strings.EqualFold(tx.TxHash, txHash) {
			return tx, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetTransactionsByUser(_ context.Context, userAddress string, limit, offset int) ([]models.StoredTransaction, error) {
	var out []models.StoredTransaction
	for _, tx := range s.txs {
		if strings.EqualFold(tx.UserAddress, userAddress) {
			out = append(out, *tx)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) GetActiveProtocolOptions(_ context.Context, network string) ([]models.ProtocolOption, error) {
	var out []models.ProtocolOption
	for _, o := range s.options {
		if o.Network == network && o.IsActive {
			out = append(out, o)
		}
	}
	return out, nil
}

type staticFees struct{ bps int64 }

func (f staticFees) FeeBasisPoints(context.Context) (*big.Int, error) {
	return big.NewInt(f.bps), nil
}

func newTestServer(store *memoryStore, fees service.FeeSource) http.Handler {
	logger := zap.NewNop()
	cfg := &config.Config{Network: config.DefaultNetworks()[config.DefaultNetwork]}

	transactions := service.NewTransactionService(store, cfg, logger)
	feeService := service.NewFeeService(fees, &cfg.Network, logger)
	handler := NewHandler(transactions, feeService, cfg.Network.Name, logger)

	return SetupRouter(handler, nil, logger)
}

func recordBody(txHash string) map[string]string {
	return map[string]string{
		"userAddress":    "0x0C1ee65e59Cd82C1C6FF3bc0d5E612190F45264D",
		"protocol":       "Lido",
		"token":          "WETH",
		"tokenAddress":   config.SepoliaWETHAddress,
		"amount":         "1.0",
		"txHash":         txHash,
		"status":         "confirmed",
		"adapterAddress": "0x8fEB6f4aA42Aec109b5a95A2653297A01Ef1340A",
		"network":        "sepolia",
		"fee":            "210345",
	}
}

func postRecord(t *testing.T, srv http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&memoryStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Network != "sepolia" {
		t.Errorf("expected network 'sepolia', got '%s'", response.Network)
	}
}

func TestHandleCreateTransaction(t *testing.T) {
	store := &memoryStore{}
	srv := newTestServer(store, nil)

	w := postRecord(t, srv, recordBody(testTxHash))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["_id"] != "65f1c0ffee01" {
		t.Errorf("expected _id '65f1c0ffee01', got '%v'", response["_id"])
	}
	if response["txHash"] != testTxHash {
		t.Errorf("expected txHash %s, got %v", testTxHash, response["txHash"])
	}
	if response["verification"] != "pending" {
		t.Errorf("expected verification 'pending', got '%v'", response["verification"])
	}
	if len(store.txs) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(store.txs))
	}

	// Same hash again
	w = postRecord(t, srv, recordBody(testTxHash))
	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestHandleCreateTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]string)
	}{
		{"missing tx hash", func(b map[string]string) { delete(b, "txHash") }},
		{"bad user address", func(b map[string]string) { b["userAddress"] = "alice" }},
		{"reverted status", func(b map[string]string) { b["status"] = "reverted" }},
		{"bad amount", func(b map[string]string) { b["amount"] = "lots" }},
		{"other network", func(b map[string]string) { b["network"] = "holesky" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			srv := newTestServer(store, nil)

			body := recordBody(testTxHash)
			tt.modify(body)

			w := postRecord(t, srv, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if len(store.txs) != 0 {
				t.Errorf("expected nothing stored, got %d records", len(store.txs))
			}
		})
	}
}

func TestHandleCreateTransaction_InvalidJSON(t *testing.T) {
	srv := newTestServer(&memoryStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewBufferString("invalid json"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandleGetTransaction(t *testing.T) {
	store := &memoryStore{}
	srv := newTestServer(store, nil)
	postRecord(t, srv, recordBody(testTxHash))

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"found", "/api/transactions/" + testTxHash, http.StatusOK},
		{"found case-insensitive", "/api/transactions/0x" + strings.ToUpper(testTxHash[2:]), http.StatusOK},
		{"missing", "/api/transactions/0x" + strings.Repeat("1", 64), http.StatusNotFound},
		{"malformed", "/api/transactions/0x1234", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestHandleGetUserTransactions(t *testing.T) {
	store := &memoryStore{}
	srv := newTestServer(store, nil)
	for i := 1; i <= 3; i++ {
		hash := fmt.Sprintf("0x%064x", i)
		if w := postRecord(t, srv, recordBody(hash)); w.Code != http.StatusCreated {
			t.Fatalf("failed to seed record: %d", w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/transactions/user/0x0c1ee65e59cd82c1c6ff3bc0d5e612190f45264d?limit=2&offset=1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response UserTransactionsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Transactions) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(response.Transactions))
	}
	if response.Limit != 2 || response.Offset != 1 {
		t.Errorf("expected limit=2 offset=1, got limit=%d offset=%d", response.Limit, response.Offset)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/transactions/user/0x0c1ee65e59cd82c1c6ff3bc0d5e612190f45264d?limit=ten", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for bad limit, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandleGetOptions(t *testing.T) {
	store := &memoryStore{options: database.DefaultProtocolOptions()}
	store.options = append(store.options, models.ProtocolOption{ID: "retired", IsActive: false, Network: "sepolia"})
	srv := newTestServer(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/options", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response ProtocolOptionsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Options) != len(database.DefaultProtocolOptions()) {
		t.Errorf("expected %d options, got %d", len(database.DefaultProtocolOptions()), len(response.Options))
	}
	for _, o := range response.Options {
		if o.ID == "retired" {
			t.Error("inactive option returned")
		}
	}
}

func TestHandleFeePreview(t *testing.T) {
	tests := []struct {
		name           string
		fees           service.FeeSource
		query          string
		expectedStatus int
		expectedFee    string
	}{
		{"valid", staticFees{bps: 30}, "?amount=1.0&token=WETH", http.StatusOK, "0.003"},
		{"missing amount", staticFees{bps: 30}, "?token=WETH", http.StatusBadRequest, ""},
		{"missing token", staticFees{bps: 30}, "?amount=1", http.StatusBadRequest, ""},
		{"bad amount", staticFees{bps: 30}, "?amount=abc&token=WETH", http.StatusBadRequest, ""},
		{"no chain connection", nil, "?amount=1&token=WETH", http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&memoryStore{}, tt.fees)

			req := httptest.NewRequest(http.MethodGet, "/api/fees/preview"+tt.query, nil)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedStatus == http.StatusOK {
				var response FeePreviewResponse
				if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if response.Fee != tt.expectedFee {
					t.Errorf("expected fee %s, got %s", tt.expectedFee, response.Fee)
				}
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&memoryStore{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&memoryStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()

	data := map[string]string{"key": "value"}
	respondJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got '%s'", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("expected key 'value', got '%s'", result["key"])
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name            string
		statusCode      int
		message         string
		err             error
		expectedError   string
		expectedMessage string
	}{
		{
			name:            "error without underlying error",
			statusCode:      http.StatusBadRequest,
			message:         "Bad request",
			err:             nil,
			expectedError:   "Bad request",
			expectedMessage: "Bad request",
		},
		{
			name:            "error with underlying error",
			statusCode:      http.StatusInternalServerError,
			message:         "Failed to record transaction",
			err:             fmt.Errorf("db down"),
			expectedError:   "Failed to record transaction",
			expectedMessage: "Failed to record transaction: db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondError(w, tt.statusCode, tt.message, tt.err)

			if w.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, w.Code)
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}

			if errResp.Error != tt.expectedError {
				t.Errorf("expected error '%s', got '%s'", tt.expectedError, errResp.Error)
			}
			if errResp.Message != tt.expectedMessage {
				t.Errorf("expected message '%s', got '%s'", tt.expectedMessage, errResp.Message)
			}
		})
	}
}
