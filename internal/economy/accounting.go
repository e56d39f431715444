// Package economy implements the trade ledger and transfer accounting.
// Emergent currencies are allowed; the system only tracks resource flows.
package economy

import (
	"fmt"
	"sync"
	"time"
)

// Transaction is one immutable resource transfer record.
type Transaction struct {
	ID           string         `json:"transaction_id"`
	Tick         int64          `json:"tick"`
	FromAgent    string         `json:"from_agent"`
	ToAgent      string         `json:"to_agent"`
	ResourceType string         `json:"resource_type"`
	Amount       float64        `json:"amount"`
	Timestamp    float64        `json:"timestamp"`
	Metadata     map[string]any `json:"metadata"`
}

// Accounting is the append-only transfer ledger. Records are never edited
// or deleted.
type Accounting struct {
	mu           sync.Mutex
	transactions []Transaction
	nextID       int
}

// NewAccounting creates an empty accounting ledger.
func NewAccounting() *Accounting {
	return &Accounting{}
}

// RecordTransfer appends one transfer record and returns it.
func (a *Accounting) RecordTransfer(tick int64, from, to, resourceType string, amount float64, metadata map[string]any) Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	if metadata == nil {
		metadata = map[string]any{}
	}
	tx := Transaction{
		ID:           fmt.Sprintf("tx_%08d", a.nextID),
		Tick:         tick,
		FromAgent:    from,
		ToAgent:      to,
		ResourceType: resourceType,
		Amount:       amount,
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		Metadata:     metadata,
	}
	a.transactions = append(a.transactions, tx)
	a.nextID++
	return tx
}

// Transactions returns records filtered by tick window and optional agent.
func (a *Accounting) Transactions(fromTick int64, toTick *int64, agentID string) []Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Transaction
	for _, tx := range a.transactions {
		if tx.Tick < fromTick {
			continue
		}
		if toTick != nil && tx.Tick > *toTick {
			continue
		}
		if agentID != "" && tx.FromAgent != agentID && tx.ToAgent != agentID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// BalanceSheet computes net resource flow for one agent across all
// recorded transfers.
func (a *Accounting) BalanceSheet(agentID string) map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	balances := make(map[string]float64)
	for _, tx := range a.transactions {
		if tx.FromAgent == agentID {
			balances[tx.ResourceType] -= tx.Amount
		}
		if tx.ToAgent == agentID {
			balances[tx.ResourceType] += tx.Amount
		}
	}
	return balances
}

// TotalVolume sums transferred amounts by resource kind.
func (a *Accounting) TotalVolume() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	volumes := make(map[string]float64)
	for _, tx := range a.transactions {
		volumes[tx.ResourceType] += tx.Amount
	}
	return volumes
}

// Count returns the number of recorded transfers.
func (a *Accounting) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transactions)
}
