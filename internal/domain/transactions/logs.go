package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goldvault/internal/infra/dbx"
)

type LogEntry struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	LogType       string          `json:"log_type"` // request, response, webhook, status, error
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type LogsRepository struct{ q dbx.Querier }

func NewLogsRepository(q dbx.Querier) *LogsRepository {
	return &LogsRepository{q: q}
}

func (r *LogsRepository) Append(ctx context.Context, transactionID, logType string, payload any) error {
	var jb []byte
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO transaction_logs (transaction_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, transactionID, logType, jb)
	if err != nil {
		return fmt.Errorf("insert transaction_log: %w", err)
	}
	return nil
}
