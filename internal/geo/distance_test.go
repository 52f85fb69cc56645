package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaversineM(t *testing.T) {
	// Seoul city hall to Gangnam station, roughly 8.5km.
	d := HaversineM(37.5663, 126.9779, 37.4979, 127.0276)
	require.InDelta(t, 8700, d, 500)

	require.Equal(t, float64(0), HaversineM(37.5, 127.0, 37.5, 127.0))

	// symmetric
	ab := HaversineM(35.1796, 129.0756, 37.5663, 126.9779)
	ba := HaversineM(37.5663, 126.9779, 35.1796, 129.0756)
	require.InDelta(t, ab, ba, 1e-6)
}
