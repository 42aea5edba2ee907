package registry

import (
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Match returns every oracle holding the event's selector index, in
// registration order. No match yields an empty, non-nil slice.
func Match(event types.QueryEvent, reg *Registry) []types.OracleIdentity {
	if reg == nil {
		return []types.OracleIdentity{}
	}

	positions := reg.byIndex[event.SelectorIndex]
	out := make([]types.OracleIdentity, 0, len(positions))
	for _, pos := range positions {
		out = append(out, reg.oracles[pos].Clone())
	}

	return out
}
