package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testAirline  = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
)

type fakeSubscription struct {
	errc         chan error
	unsubscribed chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errc: make(chan error, 1), unsubscribed: make(chan struct{})}
}

func (f *fakeSubscription) Err() <-chan error { return f.errc }
func (f *fakeSubscription) Unsubscribe()      { close(f.unsubscribed) }

type LedgerTestSuite struct {
	suite.Suite
	contract *bind.BoundContract
}

func TestLedgerTestSuite(t *testing.T) {
	defer goleak.VerifyNone(t)
	suite.Run(t, new(LedgerTestSuite))
}

func (suite *LedgerTestSuite) SetupSuite() {
	suite.contract = bind.NewBoundContract(testContract, parsedABI, nil, nil, nil)
}

func (suite *LedgerTestSuite) oracleRequestLog(index uint8, flight string, ts int64, block uint64, logIndex uint) ethtypes.Log {
	event := parsedABI.Events[EventOracleRequest]
	data, err := event.Inputs.Pack(index, testAirline, flight, big.NewInt(ts))
	suite.Require().NoError(err)

	return ethtypes.Log{
		Address:     testContract,
		Topics:      []common.Hash{event.ID},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       logIndex,
	}
}

func (suite *LedgerTestSuite) TestABIMethods() {
	for _, name := range []string{methodRegistrationFee, methodRegisterOracle, methodGetMyIndexes, methodSubmitResponse} {
		_, ok := ABI().Methods[name]
		suite.True(ok, name)
	}
	_, ok := ABI().Events[EventOracleRequest]
	suite.True(ok)
}

func (suite *LedgerTestSuite) TestPackSubmitResponse() {
	resp := Response{Index: 7, Airline: testAirline, Flight: "ER-2493", Timestamp: big.NewInt(1700000000), Verdict: types.LateAirline}

	data, err := parsedABI.Pack(methodSubmitResponse, uint8(resp.Index), resp.Airline, resp.Flight, resp.Timestamp, uint8(resp.Verdict))
	suite.Require().NoError(err)
	suite.Equal(parsedABI.Methods[methodSubmitResponse].ID, data[:4])

	args, err := parsedABI.Methods[methodSubmitResponse].Inputs.Unpack(data[4:])
	suite.Require().NoError(err)
	suite.Equal(uint8(7), args[0])
	suite.Equal(testAirline, args[1])
	suite.Equal("ER-2493", args[2])
	suite.Equal(uint8(20), args[4])
}

func (suite *LedgerTestSuite) TestDecodeOracleRequest() {
	l := suite.oracleRequestLog(7, "IB-9421", 1700000123, 42, 3)

	event, err := decodeOracleRequest(suite.contract, l)
	suite.Require().NoError(err)
	suite.Equal(types.Index(7), event.SelectorIndex)
	suite.Equal(testAirline, event.Airline)
	suite.Equal("IB-9421", event.Flight)
	suite.Equal(int64(1700000123), event.Timestamp.Int64())
	suite.Equal(uint64(42), event.BlockNumber)
	suite.Equal(uint(3), event.LogIndex)
	suite.Equal(l.TxHash, event.TxHash)
}

func (suite *LedgerTestSuite) TestDecodeOracleRequest_WrongTopic() {
	l := suite.oracleRequestLog(7, "IB-9421", 1, 1, 0)
	l.Topics = []common.Hash{parsedABI.Events["FlightStatusInfo"].ID}

	_, err := decodeOracleRequest(suite.contract, l)
	suite.Error(err)
}

func (suite *LedgerTestSuite) TestNewResponseCopiesTimestamp() {
	event := types.QueryEvent{SelectorIndex: 2, Airline: testAirline, Flight: "RY-5321", Timestamp: big.NewInt(10)}
	resp := NewResponse(event, types.OnTime)

	resp.Timestamp.SetInt64(99)
	suite.Equal(int64(10), event.Timestamp.Int64())
	suite.Equal(types.Index(2), resp.Index)
	suite.Equal(types.OnTime, resp.Verdict)

	empty := NewResponse(types.QueryEvent{}, types.Unknown)
	suite.Equal(int64(0), empty.Timestamp.Int64())
}

type rpcError struct{}

func (rpcError) Error() string  { return "execution reverted" }
func (rpcError) ErrorCode() int { return 3 }

func (suite *LedgerTestSuite) TestWrapSendError() {
	err := wrapSendError(types.ErrSubmissionRejected, rpcError{})
	suite.True(errors.Is(err, types.ErrSubmissionRejected))
	suite.Contains(err.Error(), "code 3")

	plain := errors.New("connection refused")
	suite.Equal(plain, wrapSendError(types.ErrSubmissionRejected, plain))
}

func (suite *LedgerTestSuite) decode(l ethtypes.Log) (types.QueryEvent, error) {
	return decodeOracleRequest(suite.contract, l)
}

func (suite *LedgerTestSuite) TestLogStream_HistoryThenLive() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history := []ethtypes.Log{
		suite.oracleRequestLog(1, "A", 1, 1, 0),
		suite.oracleRequestLog(2, "B", 2, 2, 0),
	}
	removed := suite.oracleRequestLog(9, "R", 3, 3, 0)
	removed.Removed = true
	garbage := ethtypes.Log{Topics: []common.Hash{{}}, BlockNumber: 4}

	live := make(chan ethtypes.Log, 4)
	live <- removed
	live <- garbage
	live <- suite.oracleRequestLog(3, "C", 5, 5, 0)

	sub := newFakeSubscription()
	s := newLogStream(suite.decode)
	go s.run(ctx, history, live, sub)

	var flights []string
	for i := 0; i < 3; i++ {
		select {
		case event := <-s.Events():
			flights = append(flights, event.Flight)
		case <-time.After(time.Second):
			suite.FailNow("timed out waiting for events")
		}
	}
	suite.Equal([]string{"A", "B", "C"}, flights)

	s.Close()
	_, open := <-s.Events()
	suite.False(open)
	<-sub.unsubscribed
}

func (suite *LedgerTestSuite) TestLogStream_TransportError() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeSubscription()
	s := newLogStream(suite.decode)
	go s.run(ctx, nil, make(chan ethtypes.Log), sub)

	sub.errc <- errors.New("websocket: close 1006")

	select {
	case err := <-s.Err():
		suite.True(errors.Is(err, types.ErrTransport))
		suite.Contains(err.Error(), "close 1006")
	case <-time.After(time.Second):
		suite.FailNow("no transport error")
	}
	<-sub.unsubscribed
}

func (suite *LedgerTestSuite) TestLogStream_ClosedSubscription() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeSubscription()
	s := newLogStream(suite.decode)
	go s.run(ctx, nil, make(chan ethtypes.Log), sub)

	close(sub.errc)

	err := <-s.Err()
	suite.True(errors.Is(err, types.ErrTransport))
	<-sub.unsubscribed
}
