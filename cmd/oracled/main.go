package main

import (
	"os"

	"github.com/GPTx-global/flightsurety-oracle/cmd/oracled/cmd"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
