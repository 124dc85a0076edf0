package taskq

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/relay/relay"
	"goa.design/relay/storage"
	rtesting "goa.design/relay/testing"
)

var (
	wf  = 5 * time.Second
	tck = 10 * time.Millisecond
)

type fixture struct {
	backend *storage.Redis
	prefix  string
	keys    storage.Keys
	clock   clockwork.FakeClock
	opts    []Option
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rdb := rtesting.NewRedisClient(t)
	prefix := rtesting.TestPrefix(t)
	t.Cleanup(func() { rtesting.CleanupRedis(t, rdb, true, prefix) })
	clock := clockwork.NewFakeClock()
	return &fixture{
		backend: storage.NewRedis(rdb, storage.WithLockRetryInterval(10*time.Millisecond, 100*time.Millisecond)),
		prefix:  prefix,
		keys:    storage.NewKeys(prefix),
		clock:   clock,
		opts: append([]Option{
			WithPrefix(prefix),
			WithClock(clock),
			WithLogger(relay.ClueLogger(rtesting.NewTestContext(t))),
		}, opts...),
	}
}

func (f *fixture) master(t *testing.T, opts ...Option) *Master {
	t.Helper()
	m, err := NewMaster(context.Background(), f.backend, append(f.opts, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close(context.Background())) })
	return m
}

func (f *fixture) slave(t *testing.T, opts ...Option) *Slave {
	t.Helper()
	s, err := NewSlave(context.Background(), f.backend, append(f.opts, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close(context.Background())) })
	return s
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	master := f.master(t, WithProcessIdentity("m1"))
	slave := f.slave(t, WithProcessIdentity("s1"))
	assert.Equal(t, "master:m1", master.NodeID())
	assert.Equal(t, "slave:s1", slave.NodeID())

	for score, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, master.Send(ctx, 0, float64(score+1), v))
	}
	size, err := master.QueueSize(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)
	max, err := master.QueueMax(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, max)

	v, ok, err := slave.Consume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v3", v)
	sum, err := slave.ExecuteQueueSum(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum)

	require.NoError(t, slave.Commit(ctx, "r3", v))
	results, err := master.ResultQueueSum(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, results)
	sum, err = slave.ExecuteQueueSum(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum)

	r, ok, err := master.Consume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r3", r)
	inflight, err := master.ExecuteQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, inflight)
	require.NoError(t, master.Commit(ctx, r))
	sum, err = master.ExecuteQueueSum(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum)

	_, ok, err = master.Consume(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendInvalidQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithQueueCount(2))
	master := f.master(t)
	assert.ErrorIs(t, master.Send(ctx, 2, 1, "v"), ErrInvalidQueue)
	assert.ErrorIs(t, master.Send(ctx, -1, 1, "v"), ErrInvalidQueue)
	_, err := master.QueueSize(ctx, 5)
	assert.ErrorIs(t, err, ErrInvalidQueue)
	assert.NoError(t, master.Send(ctx, 1, 1, "v"))
}

func TestInvalidUTF8Values(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	master := f.master(t)
	slave := f.slave(t)

	assert.ErrorIs(t, master.Send(ctx, 0, 1, "task-\xff\xfe"), ErrInvalidValue)
	size, err := master.QueueSize(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, master.Send(ctx, 0, 1, "task"))
	v, ok, err := slave.Consume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, slave.Commit(ctx, "result-\xff", v), ErrInvalidValue)
	n, err := slave.ExecuteQueueSum(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rejected commit must keep the task in flight")
	results, err := master.ResultQueueSum(ctx)
	require.NoError(t, err)
	assert.Zero(t, results)

	require.NoError(t, slave.Commit(ctx, "résultat", v))
	n, err = slave.ExecuteQueueSum(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedMasterRejectsDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithQueueCount(2))
	master := f.master(t)
	require.NoError(t, master.Send(ctx, 0, 1, "a"))
	require.NoError(t, master.Close(ctx))

	_, err := master.Delete(ctx, 0, "a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = master.DeleteAny(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	n, err := f.backend.ZCard(ctx, f.keys.Queue(0))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteAndQueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithQueueCount(3))
	master := f.master(t)
	require.NoError(t, master.Send(ctx, 0, 2, "a"))
	require.NoError(t, master.Send(ctx, 0, 1, "b"))
	require.NoError(t, master.Send(ctx, 2, 1, "b"))

	q, err := master.Queue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []storage.ScoredMember{{Member: "b", Score: 1}, {Member: "a", Score: 2}}, q)
	all, err := master.AllQueues(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Empty(t, all[1])
	sizes, err := master.QueueSizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0, 1}, sizes)

	deleted, err := master.Delete(ctx, 0, "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = master.Delete(ctx, 0, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = master.DeleteAny(ctx, "b")
	require.NoError(t, err)
	assert.True(t, deleted)
	sizes, err = master.QueueSizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0}, sizes)
}

func TestConsumeSkipsBusyQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLockTimeout(50*time.Millisecond))
	master := f.master(t)
	slave := f.slave(t)
	require.NoError(t, master.Send(ctx, 0, 1, "v"))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- f.backend.WithLock(ctx, f.keys.SlaveConsumerLock(f.keys.Queue(0)), 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	_, ok, err := slave.Consume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "busy queue must be skipped")
	close(release)
	require.NoError(t, <-done)

	v, ok, err := slave.Consume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestConsumeUnlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithQueueCount(4), WithStrategy("round_robin"))
	master := f.master(t)
	s1 := f.slave(t, WithProcessIdentity("a"))
	s2 := f.slave(t, WithProcessIdentity("b"))

	for q := 0; q < 4; q++ {
		require.NoError(t, master.Send(ctx, q, 1, "t"+string(rune('0'+q))))
	}
	q1, err := s1.QueuesForWorker(ctx)
	require.NoError(t, err)
	q2, err := s2.QueuesForWorker(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, q1)
	assert.Equal(t, []int{2, 3}, q2)

	var got []string
	for _, s := range []*Slave{s1, s1, s2, s2} {
		v, ok, err := s.ConsumeUnlocked(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, v)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3"}, got)

	_, ok, err := s1.ConsumeUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlaveFailureRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	master := f.master(t)
	require.Eventually(t, master.IsLeader, wf, tck)
	slave, err := NewSlave(ctx, f.backend, f.opts...)
	require.NoError(t, err)

	require.NoError(t, master.Send(ctx, 0, 7, "x"))
	v, ok, err := slave.Consume(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", v)
	require.NoError(t, slave.Close(ctx))
	assert.ErrorIs(t, slave.Commit(ctx, "r", "x"), ErrClosed)
	_, _, err = slave.Consume(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Let the leader run detection ticks until the task is handed back.
	assert.Eventually(t, func() bool {
		f.clock.Advance(time.Minute)
		n, err := master.QueueSize(ctx, 0)
		return err == nil && n == 1
	}, wf, 50*time.Millisecond)
	top, ok, err := f.backend.ZPeekMax(ctx, f.keys.Queue(0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", top.Member)

	assert.Eventually(t, func() bool {
		_, ok, err := f.backend.HGet(ctx, f.keys.HeartHash(), slave.NodeID())
		return err == nil && !ok
	}, wf, tck)
	sum, err := f.backend.HGetAll(ctx, f.keys.ExecuteHash())
	require.NoError(t, err)
	assert.NotContains(t, sum, slave.NodeID())
}

func TestResetAndInspect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithQueueCount(2))
	master := f.master(t, WithProcessIdentity("m"))
	require.Eventually(t, master.IsLeader, wf, tck)
	require.NoError(t, master.Send(ctx, 1, 1, "v"))

	st, err := Inspect(ctx, f.backend, f.prefix, 2)
	require.NoError(t, err)
	assert.Equal(t, "master:m", st.Leader)
	assert.Contains(t, st.Heartbeats, "master:m")
	assert.Equal(t, []int64{0, 1}, st.QueueSizes)
	assert.Zero(t, st.Results)
	assert.Empty(t, st.Ledgers)

	require.NoError(t, master.Close(ctx))
	n, err := Reset(ctx, f.backend, f.prefix, 2)
	require.NoError(t, err)
	assert.Positive(t, n)
	st, err = Inspect(ctx, f.backend, f.prefix, 2)
	require.NoError(t, err)
	assert.Empty(t, st.Leader)
	assert.Empty(t, st.Heartbeats)
	assert.Equal(t, []int64{0, 0}, st.QueueSizes)

	_, err = Reset(ctx, f.backend, f.prefix, 0)
	assert.ErrorIs(t, err, ErrInvalidQueueCount)
}

func TestNewNodeErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := NewMaster(ctx, f.backend, append(f.opts, WithQueueCount(10))...)
	assert.ErrorIs(t, err, ErrInvalidQueueCount)
	_, err = NewSlave(ctx, f.backend, append(f.opts, WithStrategy("random"))...)
	assert.Error(t, err)
}
