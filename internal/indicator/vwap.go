// Package indicator computes derived per-bar values for series whose venue
// does not supply them.
package indicator

import (
	"time"

	"github.com/thewatergategroups/llama/internal/types"
)

type vwapState struct {
	priceVolume float64
	volume      float64
}

// FillVWAP computes a session volume weighted average price for every bar
// that arrived without one. Bars are grouped by symbol and UTC day; within a
// group the VWAP is the running sum of typical price times volume over the
// running volume. Bars already carrying a venue VWAP keep it but still feed
// the running totals. The series must be time ordered per symbol.
func FillVWAP(series []types.Bar) {
	sessions := make(map[string]*vwapState)

	for i := range series {
		bar := &series[i]
		key := bar.Symbol + "|" + bar.Timestamp.UTC().Format(time.DateOnly)

		state, ok := sessions[key]
		if !ok {
			state = &vwapState{}
			sessions[key] = state
		}

		typical := (bar.High + bar.Low + bar.Close) / 3
		state.priceVolume += typical * bar.Volume
		state.volume += bar.Volume

		if bar.VWAP != 0 {
			continue
		}

		if state.volume == 0 {
			bar.VWAP = typical

			continue
		}

		bar.VWAP = state.priceVolume / state.volume
	}
}
