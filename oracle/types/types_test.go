package types_test

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesTestSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (suite *TypesTestSuite) TestParseIndex_Representations() {
	testCases := []struct {
		name  string
		input any
	}{
		{"uint8", uint8(7)},
		{"int", 7},
		{"int64", int64(7)},
		{"uint64", uint64(7)},
		{"string", "7"},
		{"zero padded string", "07"},
		{"padded string", " 7 "},
		{"big int", big.NewInt(7)},
		{"json number", json.Number("7")},
		{"integral float", float64(7)},
		{"index", types.Index(7)},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			index, err := types.ParseIndex(tc.input)
			suite.Require().NoError(err)
			suite.Equal(types.Index(7), index)
			suite.Equal("7", index.String())
		})
	}
}

func (suite *TypesTestSuite) TestParseIndex_Invalid() {
	testCases := []struct {
		name  string
		input any
	}{
		{"negative", -1},
		{"too large", 256},
		{"too large uint64", uint64(1 << 40)},
		{"hex string", "0x07"},
		{"word", "seven"},
		{"empty", ""},
		{"negative big", big.NewInt(-3)},
		{"nil big", (*big.Int)(nil)},
		{"fraction", 7.5},
		{"struct", struct{}{}},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			_, err := types.ParseIndex(tc.input)
			suite.Require().Error(err)
			suite.True(errors.Is(err, types.ErrInvalidIndex))
		})
	}
}

func (suite *TypesTestSuite) TestParseIndexes() {
	indexes, err := types.ParseIndexes([]string{"3", "7", "9"})
	suite.Require().NoError(err)
	suite.Equal([]types.Index{3, 7, 9}, indexes)

	_, err = types.ParseIndexes([]string{"3", "x"})
	suite.Error(err)
}

func (suite *TypesTestSuite) TestOracleIdentity_HasAndClone() {
	oracle := types.OracleIdentity{
		Address:    common.HexToAddress("0x01"),
		Indexes:    []types.Index{3, 7, 9},
		Registered: true,
	}

	suite.True(oracle.Has(7))
	suite.False(oracle.Has(8))
	suite.True(oracle.Has(types.MustParseIndex("07")))

	clone := oracle.Clone()
	clone.Indexes[0] = 42
	suite.Equal(types.Index(3), oracle.Indexes[0])
	suite.Contains(oracle.String(), "[3,7,9]")
}

func (suite *TypesTestSuite) TestVerdicts() {
	suite.Equal([]types.StatusVerdict{0, 10, 20, 30, 40, 50}, types.Verdicts())

	for _, v := range types.Verdicts() {
		suite.True(v.Valid())
	}
	suite.False(types.StatusVerdict(15).Valid())

	// callers cannot mutate the package set
	vs := types.Verdicts()
	vs[0] = 99
	suite.Equal(types.Unknown, types.Verdicts()[0])
}

func (suite *TypesTestSuite) TestParseVerdict() {
	testCases := []struct {
		input    string
		expected types.StatusVerdict
		wantErr  bool
	}{
		{"0", types.Unknown, false},
		{"10", types.OnTime, false},
		{"late_weather", types.LateWeather, false},
		{" LATE_OTHER ", types.LateOther, false},
		{"40", types.LateTechnical, false},
		{"15", 0, true},
		{"delayed", 0, true},
	}

	for _, tc := range testCases {
		suite.Run(tc.input, func() {
			v, err := types.ParseVerdict(tc.input)
			if tc.wantErr {
				suite.Require().Error(err)
				suite.True(errors.Is(err, types.ErrVerdictSource))
				return
			}
			suite.Require().NoError(err)
			suite.Equal(tc.expected, v)
		})
	}
}

func (suite *TypesTestSuite) TestQueryEventKey() {
	event := types.QueryEvent{
		TxHash:   common.HexToHash("0xabc"),
		LogIndex: 3,
	}

	suite.Equal(common.HexToHash("0xabc").Hex()+":3", event.Key())
}

func (suite *TypesTestSuite) TestOutcomeString() {
	suite.Equal("pending", types.Pending.String())
	suite.Equal("accepted", types.Accepted.String())
	suite.Equal("rejected", types.Rejected.String())
}
