package monitor

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type MonitorTestSuite struct {
	suite.Suite
	monitor *Monitor
}

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}

func (suite *MonitorTestSuite) SetupTest() {
	log.InitLogger()

	m, err := New()
	suite.Require().NoError(err)
	suite.monitor = m
}

func attempt(oracle byte, outcome types.Outcome, verdict types.StatusVerdict) types.SubmissionAttempt {
	start := time.Now().Add(-25 * time.Millisecond)
	a := types.SubmissionAttempt{
		Oracle: types.OracleIdentity{Address: common.BytesToAddress([]byte{oracle}), Indexes: []types.Index{2}},
		Event: types.QueryEvent{
			SelectorIndex: 2,
			Airline:       common.HexToAddress("0xA1"),
			Flight:        "ND1309",
			Timestamp:     big.NewInt(1700000000),
		},
		Verdict:    verdict,
		Outcome:    outcome,
		Attempts:   1,
		StartedAt:  start,
		FinishedAt: start.Add(25 * time.Millisecond),
	}
	if outcome == types.Rejected {
		a.Err = errors.New("execution reverted")
	} else {
		a.TxHash = common.HexToHash("0xbeef")
	}

	return a
}

func (suite *MonitorTestSuite) TestNewEntry() {
	e := NewEntry(attempt(1, types.Accepted, types.LateWeather))
	suite.Equal("late_weather", e.Verdict)
	suite.Equal(uint8(30), e.StatusCode)
	suite.Equal("accepted", e.Outcome)
	suite.Equal("1700000000", e.Timestamp)
	suite.Equal(uint8(2), e.Index)
	suite.Equal(int64(25), e.DurationMs)
	suite.NotEmpty(e.TxHash)
	suite.Empty(e.Error)

	rejected := NewEntry(attempt(1, types.Rejected, types.OnTime))
	suite.Empty(rejected.TxHash)
	suite.Equal("execution reverted", rejected.Error)
}

func (suite *MonitorTestSuite) TestRecordKeepsLatest() {
	suite.monitor.Record(attempt(1, types.Rejected, types.OnTime))
	suite.monitor.Record(attempt(1, types.Accepted, types.LateOther))
	suite.monitor.Record(attempt(2, types.Accepted, types.Unknown))

	attempts := suite.monitor.Attempts()
	suite.Require().Len(attempts, 2)
	suite.True(attempts[0].Oracle < attempts[1].Oracle)

	last, ok := suite.monitor.Last(common.BytesToAddress([]byte{1}).Hex())
	suite.Require().True(ok)
	suite.Equal("late_other", last.Verdict)

	suite.Equal(Counts{Accepted: 2, Rejected: 1}, suite.monitor.Counts())
}

func (suite *MonitorTestSuite) TestRecordUnconfirmed() {
	a := attempt(3, types.Pending, types.OnTime)
	a.Err = errors.New("transaction sent, receipt unknown")
	suite.monitor.Record(a)

	suite.Equal(Counts{Unconfirmed: 1}, suite.monitor.Counts())

	last, ok := suite.monitor.Last(common.BytesToAddress([]byte{3}).Hex())
	suite.Require().True(ok)
	suite.Equal("pending", last.Outcome)
	suite.NotEmpty(last.TxHash)

	data := suite.monitor.Sink().Data()
	suite.Require().NotEmpty(data)
	var found bool
	for key := range data[len(data)-1].Counters {
		found = found || strings.HasPrefix(key, "oracled.submissions.unconfirmed")
	}
	suite.True(found)
}

func (suite *MonitorTestSuite) TestMetrics() {
	suite.monitor.Record(attempt(1, types.Accepted, types.OnTime))
	suite.monitor.Record(attempt(2, types.Rejected, types.OnTime))

	data := suite.monitor.Sink().Data()
	suite.Require().NotEmpty(data)
	current := data[len(data)-1]

	var accepted, rejected bool
	for key := range current.Counters {
		accepted = accepted || strings.HasPrefix(key, "oracled.submissions.accepted")
		rejected = rejected || strings.HasPrefix(key, "oracled.submissions.rejected")
	}
	suite.True(accepted)
	suite.True(rejected)
}

func (suite *MonitorTestSuite) TestSubscribe() {
	ch, cancel := suite.monitor.Subscribe(1)

	suite.monitor.Record(attempt(1, types.Accepted, types.OnTime))
	suite.monitor.Record(attempt(2, types.Accepted, types.OnTime))

	select {
	case e := <-ch:
		suite.Equal(common.BytesToAddress([]byte{1}).Hex(), e.Oracle)
	case <-time.After(time.Second):
		suite.FailNow("no entry")
	}

	cancel()
	cancel()
	_, open := <-ch
	suite.False(open)

	suite.monitor.Record(attempt(3, types.Accepted, types.OnTime))
}
