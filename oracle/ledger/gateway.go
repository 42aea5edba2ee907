package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Gateway is the narrow view of the FlightSurety contract the daemon needs.
type Gateway interface {
	// RegistrationFee is the value registerOracle must carry.
	RegistrationFee(ctx context.Context) (*big.Int, error)
	// RegisterOracle pays the fee from the account and waits for the receipt.
	RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) (common.Hash, error)
	// GetAssignedIndexes reads the index set the contract assigned to account.
	GetAssignedIndexes(ctx context.Context, account common.Address) ([]types.Index, error)
	// SubscribeOracleRequests streams OracleRequest events starting at fromBlock.
	SubscribeOracleRequests(ctx context.Context, fromBlock uint64) (Stream, error)
	// SubmitResponse sends submitOracleResponse from the account with a fixed gas ceiling.
	SubmitResponse(ctx context.Context, resp Response, from common.Address, gasLimit uint64) (common.Hash, error)
}

// Stream delivers events in ledger order until Close or a transport error.
// Events is closed when the stream ends; a transport error is sent on Err
// before that.
type Stream interface {
	Events() <-chan types.QueryEvent
	Err() <-chan error
	Close()
}

// Response is the argument tuple of submitOracleResponse.
type Response struct {
	Index     types.Index
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Verdict   types.StatusVerdict
}

// NewResponse copies the event fields the contract cross-checks.
func NewResponse(event types.QueryEvent, verdict types.StatusVerdict) Response {
	ts := new(big.Int)
	if event.Timestamp != nil {
		ts.Set(event.Timestamp)
	}

	return Response{
		Index:     event.SelectorIndex,
		Airline:   event.Airline,
		Flight:    event.Flight,
		Timestamp: ts,
		Verdict:   verdict,
	}
}

// HeadReader is implemented by gateways that can report the chain head.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}
