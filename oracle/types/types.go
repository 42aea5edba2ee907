package types

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OracleIdentity is a locally controlled oracle account together with the
// index set the ledger assigned to it at registration.
type OracleIdentity struct {
	Address    common.Address
	Indexes    []Index
	Registered bool
}

// Has reports whether the identity holds the given selector index.
func (o OracleIdentity) Has(index Index) bool {
	return slices.Contains(o.Indexes, index)
}

// Clone returns a copy that does not share the index slice.
func (o OracleIdentity) Clone() OracleIdentity {
	o.Indexes = slices.Clone(o.Indexes)
	return o
}

func (o OracleIdentity) String() string {
	parts := make([]string, len(o.Indexes))
	for i, index := range o.Indexes {
		parts[i] = index.String()
	}

	return fmt.Sprintf("%s[%s]", o.Address.Hex(), strings.Join(parts, ","))
}

// QueryEvent is a single OracleRequest emitted by the contract.
type QueryEvent struct {
	SelectorIndex Index
	Airline       common.Address
	Flight        string
	Timestamp     *big.Int

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Key identifies the log that produced the event.
func (e QueryEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash.Hex(), e.LogIndex)
}

func (e QueryEvent) String() string {
	return fmt.Sprintf("index=%s airline=%s flight=%s timestamp=%s block=%d",
		e.SelectorIndex, e.Airline.Hex(), e.Flight, e.Timestamp, e.BlockNumber)
}

type Outcome byte

const (
	Pending Outcome = iota
	Accepted
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", byte(o))
	}
}

// SubmissionAttempt records one oracle's response to one event.
type SubmissionAttempt struct {
	Oracle   OracleIdentity
	Event    QueryEvent
	Verdict  StatusVerdict
	Outcome  Outcome
	TxHash   common.Hash
	Err      error
	Attempts int

	StartedAt  time.Time
	FinishedAt time.Time
}

func (a SubmissionAttempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}

	return a.FinishedAt.Sub(a.StartedAt)
}
