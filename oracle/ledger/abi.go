package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodRegistrationFee = "REGISTRATION_FEE"
	methodRegisterOracle  = "registerOracle"
	methodGetMyIndexes    = "getMyIndexes"
	methodSubmitResponse  = "submitOracleResponse"

	EventOracleRequest = "OracleRequest"
)

// FlightSuretyABI is the subset of FlightSuretyApp used by oracles.
const FlightSuretyABI = `[
	{"type":"function","name":"REGISTRATION_FEE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"registerOracle","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"getMyIndexes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8[3]"}]},
	{"type":"function","name":"submitOracleResponse","stateMutability":"nonpayable","inputs":[
		{"name":"index","type":"uint8"},
		{"name":"airline","type":"address"},
		{"name":"flight","type":"string"},
		{"name":"timestamp","type":"uint256"},
		{"name":"statusCode","type":"uint8"}
	],"outputs":[]},
	{"type":"event","name":"OracleRequest","anonymous":false,"inputs":[
		{"indexed":false,"name":"index","type":"uint8"},
		{"indexed":false,"name":"airline","type":"address"},
		{"indexed":false,"name":"flight","type":"string"},
		{"indexed":false,"name":"timestamp","type":"uint256"}
	]},
	{"type":"event","name":"OracleReport","anonymous":false,"inputs":[
		{"indexed":false,"name":"airline","type":"address"},
		{"indexed":false,"name":"flight","type":"string"},
		{"indexed":false,"name":"timestamp","type":"uint256"},
		{"indexed":false,"name":"status","type":"uint8"}
	]},
	{"type":"event","name":"FlightStatusInfo","anonymous":false,"inputs":[
		{"indexed":false,"name":"airline","type":"address"},
		{"indexed":false,"name":"flight","type":"string"},
		{"indexed":false,"name":"timestamp","type":"uint256"},
		{"indexed":false,"name":"status","type":"uint8"}
	]}
]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(FlightSuretyABI))
	if err != nil {
		panic(err)
	}
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return parsedABI
}
