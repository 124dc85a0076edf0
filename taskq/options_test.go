package taskq

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/relay/rebalance"
)

func TestParseOptions(t *testing.T) {
	o, err := parseOptions()
	require.NoError(t, err)
	assert.Equal(t, "relay:default", o.prefix)
	assert.Equal(t, 1, o.queueCount)
	assert.Equal(t, rebalance.NameConsistentHash, o.strategy)
	assert.Equal(t, DefaultLockTimeout, o.lockTimeout)
	assert.NotEmpty(t, o.identity)

	o, err = parseOptions(WithQueueCount(9), WithLockTimeout(-time.Second), WithProcessIdentity("p1"))
	require.NoError(t, err)
	assert.Equal(t, 9, o.queueCount)
	assert.Equal(t, DefaultLockTimeout, o.lockTimeout)
	assert.Equal(t, "p1", o.identity)

	for _, n := range []int{0, 10} {
		_, err := parseOptions(WithQueueCount(n))
		assert.ErrorIs(t, err, ErrInvalidQueueCount)
	}
}

func TestProcessIdentity(t *testing.T) {
	a, b := ProcessIdentity(), ProcessIdentity()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, strconv.Itoa(os.Getpid())+"@"), a)
}
