package gnss

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeNMEAFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "track.nmea")
	content := ""
	for _, l := range lines {
		content += l + "\r\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNextFixCombinesGGAQualityWithRMCPosition(t *testing.T) {
	path := writeNMEAFile(t,
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
	)
	src, err := File(path)
	require.NoError(t, err)
	defer src.Close()

	fix, err := src.NextFix()
	require.NoError(t, err)
	require.InDelta(t, 48.1173, fix.Lat, 0.01)
	require.InDelta(t, 11.5166, fix.Lon, 0.01)
	require.Equal(t, uint8(8), fix.Quality.Sats)
	require.InDelta(t, 0.9, fix.Quality.HDOP, 0.001)
}

func TestNextFixUsesDefaultQualityWithoutPriorGGA(t *testing.T) {
	path := writeNMEAFile(t,
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
	)
	src, err := File(path)
	require.NoError(t, err)
	defer src.Close()

	fix, err := src.NextFix()
	require.NoError(t, err)
	require.Equal(t, uint8(0), fix.Quality.Sats)
	require.InDelta(t, 99.9, fix.Quality.HDOP, 0.001)
}

func TestParseLineIgnoresUnrelatedSentences(t *testing.T) {
	src := &Source{}
	_, ok, err := src.parseLine("$GPGSV,3,1,11,03,03,111,00*36")
	require.NoError(t, err)
	require.False(t, ok)
}
