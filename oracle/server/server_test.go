package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/health"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/monitor"
	"github.com/GPTx-global/flightsurety-oracle/oracle/subscribe"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type staticOracles []types.OracleIdentity

func (s staticOracles) All() []types.OracleIdentity { return s }

type ServerTestSuite struct {
	suite.Suite
	monitor *monitor.Monitor
	checker *health.Checker
	healthy bool
	ts      *httptest.Server
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	log.InitLogger()

	m, err := monitor.New()
	suite.Require().NoError(err)
	suite.monitor = m

	suite.healthy = true
	suite.checker = health.NewChecker(time.Minute)
	suite.checker.Add(health.NewFunc("always", func(context.Context) error {
		if !suite.healthy {
			return context.DeadlineExceeded
		}
		return nil
	}))
	suite.checker.RunChecks(context.Background())

	s := New(Deps{
		Oracles: staticOracles{
			{Address: common.HexToAddress("0x01"), Indexes: []types.Index{1, 2, 3}},
			{Address: common.HexToAddress("0x02"), Indexes: []types.Index{3, 7, 9}},
		},
		Monitor: suite.monitor,
		Health:  suite.checker,
		Stats:   func() subscribe.Stats { return subscribe.Stats{Received: 4, Duplicates: 1, HandedOff: 3} },
	})
	suite.ts = httptest.NewServer(s.Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.ts.Close()
}

func (suite *ServerTestSuite) get(path string, out any) int {
	res, err := http.Get(suite.ts.URL + path)
	suite.Require().NoError(err)
	defer res.Body.Close()

	suite.Equal("application/json", res.Header.Get("Content-Type"))
	if out != nil {
		suite.Require().NoError(json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (suite *ServerTestSuite) TestIndex() {
	var body map[string]string
	suite.Equal(http.StatusOK, suite.get("/api", &body))
	suite.Equal("An API for use with your Dapp!", body["message"])
}

func (suite *ServerTestSuite) TestOracles() {
	var body []struct {
		Address string `json:"address"`
		Indexes []int  `json:"indexes"`
	}
	suite.Equal(http.StatusOK, suite.get("/api/oracles", &body))
	suite.Require().Len(body, 2)
	suite.Equal([]int{3, 7, 9}, body[1].Indexes)
}

func (suite *ServerTestSuite) TestHealth() {
	var body struct {
		Healthy  bool            `json:"healthy"`
		Listener subscribe.Stats `json:"listener"`
	}
	suite.Equal(http.StatusOK, suite.get("/api/health", &body))
	suite.True(body.Healthy)
	suite.Equal(uint64(3), body.Listener.HandedOff)

	suite.healthy = false
	suite.checker.RunChecks(context.Background())
	suite.Equal(http.StatusServiceUnavailable, suite.get("/api/health", &body))
	suite.False(body.Healthy)
}

func (suite *ServerTestSuite) TestAttemptsAndMetrics() {
	var empty []monitor.Entry
	suite.Equal(http.StatusOK, suite.get("/api/attempts", &empty))
	suite.Empty(empty)

	suite.monitor.Record(types.SubmissionAttempt{
		Oracle:  types.OracleIdentity{Address: common.HexToAddress("0x01")},
		Event:   types.QueryEvent{SelectorIndex: 3, Flight: "ND1309", Timestamp: big.NewInt(1)},
		Verdict: types.LateAirline,
		Outcome: types.Accepted,
	})

	var attempts []monitor.Entry
	suite.Equal(http.StatusOK, suite.get("/api/attempts", &attempts))
	suite.Require().Len(attempts, 1)
	suite.Equal("late_airline", attempts[0].Verdict)

	var metrics map[string]any
	suite.Equal(http.StatusOK, suite.get("/api/metrics", &metrics))
	suite.Contains(metrics, "Counters")
}

func (suite *ServerTestSuite) TestCORS() {
	req, err := http.NewRequest(http.MethodGet, suite.ts.URL+"/api", nil)
	suite.Require().NoError(err)
	req.Header.Set("Origin", "http://localhost:8000")

	res, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer res.Body.Close()
	suite.Equal("*", res.Header.Get("Access-Control-Allow-Origin"))
}

func (suite *ServerTestSuite) TestStream() {
	url := "ws" + strings.TrimPrefix(suite.ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	oracle := common.HexToAddress("0x02")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				suite.monitor.Record(types.SubmissionAttempt{
					Oracle:  types.OracleIdentity{Address: oracle},
					Event:   types.QueryEvent{SelectorIndex: 7, Flight: "ND1309"},
					Verdict: types.OnTime,
					Outcome: types.Rejected,
				})
			}
		}
	}()

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var entry monitor.Entry
	suite.Require().NoError(conn.ReadJSON(&entry))
	suite.Equal(oracle.Hex(), entry.Oracle)
	suite.Equal("rejected", entry.Outcome)
}
