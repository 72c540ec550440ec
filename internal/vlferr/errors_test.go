package vlferr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelMatching(t *testing.T) {
	err := Wrap(NotFound, "station %s", "abc")
	require.True(t, errors.Is(err, NotFound))
	require.False(t, errors.Is(err, InvalidFormat))
	require.Contains(t, err.Error(), "abc")
}

func TestHttpNonOkReportsCode(t *testing.T) {
	err := NewHttpNonOk(503)
	require.Contains(t, err.Error(), "503")

	var nonOk *HttpNonOk
	require.True(t, errors.As(err, &nonOk))
	require.Equal(t, 503, nonOk.Code)
}
