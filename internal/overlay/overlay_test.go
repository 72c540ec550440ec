package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHostPortSplitsHostAndPort(t *testing.T) {
	host, port, err := ParseHostPort("10.0.0.1:4001")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", host)
	require.Equal(t, "4001", port)
}

func TestParseHostPortRejectsMissingPort(t *testing.T) {
	_, _, err := ParseHostPort("10.0.0.1")
	require.Error(t, err)
}
