package dns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIPLiteral(t *testing.T) {
	ip, err := Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	ip, err = Lookup(context.Background(), "[::1]")
	require.NoError(t, err)
	assert.Equal(t, "::1", ip)
}

func TestPreferIPv4(t *testing.T) {
	assert.Equal(t, "10.0.0.1", preferIPv4([]string{"fe80::1", "10.0.0.1"}))
	assert.Equal(t, "fe80::1", preferIPv4([]string{"fe80::1"}))
}
