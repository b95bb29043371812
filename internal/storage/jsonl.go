package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

// JsonlJournal appends snapshots and rebalance events to JSONL files next
// to each other, one record per line.
type JsonlJournal struct {
	snapshotPath  string
	rebalancePath string
	mu            sync.Mutex
}

func NewJsonlJournal(snapshotPath, rebalancePath string) *JsonlJournal {
	return &JsonlJournal{snapshotPath: snapshotPath, rebalancePath: rebalancePath}
}

// PutSnapshot appends one poll snapshot as a JSON line.
func (j *JsonlJournal) PutSnapshot(_ context.Context, snapshot model.PoolSnapshot) error {
	return j.appendLine(j.snapshotPath, snapshot)
}

// PutRebalance appends one rebalance record as a JSON line.
func (j *JsonlJournal) PutRebalance(_ context.Context, event model.RebalanceEvent) error {
	return j.appendLine(j.rebalancePath, event)
}

func (j *JsonlJournal) appendLine(path string, record any) error {
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
