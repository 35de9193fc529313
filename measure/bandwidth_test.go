package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadKbpsSingleSampleFallsBackToAverage(t *testing.T) {
	hist := []PortStatsSample{
		{TxBytes: 1000, RxBytes: 0, DurationSec: 10},
	}

	// 1000 bytes * 8 / 10s / 1000 = 0.8 kbps
	assert.InDelta(t, 0.8, LoadKbps(hist), 1e-9)
}

func TestLoadKbpsDeltaBetweenSamples(t *testing.T) {
	hist := []PortStatsSample{
		{TxBytes: 1000, RxBytes: 0, DurationSec: 10},
		{TxBytes: 2000, RxBytes: 0, DurationSec: 11},
	}

	// delta = 1000 bytes over 1s = 8000 bits / 1s / 1000 = 8 kbps
	assert.InDelta(t, 8, LoadKbps(hist), 1e-9)
}

func TestLoadKbpsZeroDeltaSameCountsFallsBackToAverage(t *testing.T) {
	hist := []PortStatsSample{
		{TxBytes: 1000, RxBytes: 0, DurationSec: 10},
		{TxBytes: 1000, RxBytes: 0, DurationSec: 10},
	}

	assert.InDelta(t, 0.8, LoadKbps(hist), 1e-9)
}

func TestLoadKbpsZeroDeltaDifferingCountsIsZero(t *testing.T) {
	hist := []PortStatsSample{
		{TxBytes: 1000, RxBytes: 0, DurationSec: 10},
		{TxBytes: 2000, RxBytes: 0, DurationSec: 10},
	}

	assert.Equal(t, float64(0), LoadKbps(hist))
}

func TestLoadKbpsEmptyHistoryIsZero(t *testing.T) {
	assert.Equal(t, float64(0), LoadKbps(nil))
}
