package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stakeflow/internal/models"
)

// TransactionsPath is the sink endpoint accepting transaction records
const TransactionsPath = "/api/transactions"

// Client posts confirmed transaction records to the sink service.
// Timeouts come from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// saveResponse is the body returned by the sink on a successful save
type saveResponse struct {
	ID string `json:"_id"`
}

// NewClient creates a sink client for the service at baseURL
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("sink"),
	}
}

// Save sends the record and returns the id assigned by the sink.
// A non-2xx response is returned as "HTTP <status>: <body>".
func (c *Client) Save(ctx context.Context, record models.TransactionRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	url := c.baseURL + TransactionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Posting transaction record",
		zap.String("url", url),
		zap.String("tx_hash", record.TxHash))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach transaction sink: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result saveResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return result.ID, nil
}
