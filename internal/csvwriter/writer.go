// Package csvwriter exports trade history to CSV files.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

var tradeHeader = []string{
	"id", "agent_id", "market_id", "action", "side",
	"size_usd", "price", "shares", "status", "error", "cycle", "created_at",
}

// Writer is a simple CSV writer.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewWriter creates a new CSV writer.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	writer := csv.NewWriter(file)

	return &Writer{
		file:   file,
		writer: writer,
		logger: logger,
	}, nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// WriteTrades writes the header row followed by one row per trade.
func (w *Writer) WriteTrades(trades []ledger.Trade) error {
	if err := w.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ID,
			t.AgentID,
			t.MarketID,
			string(t.Action),
			string(t.Side),
			t.SizeUSD.String(),
			t.Price.String(),
			t.Shares.String(),
			string(t.Status),
			t.Error,
			fmt.Sprintf("%d", t.CycleNumber),
			t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
}

// Close closes the file.
func (w *Writer) Close() error {
	w.Flush()
	return w.file.Close()
}
