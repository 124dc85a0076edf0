package relay

import (
	"context"
	"errors"
	stdlog "log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"goa.design/clue/log"

	rtesting "goa.design/relay/testing"
)

func TestGoRunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go(NoopLogger(), func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}
}

func TestGoNilLogger(t *testing.T) {
	// Without the fallback the panic would crash the test binary.
	panicked := make(chan struct{})
	Go(nil, func() {
		defer close(panicked)
		panic("heartbeat loop failed")
	})
	<-panicked

	done := make(chan struct{})
	Go(nil, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run after a recovered panic")
	}
}

func TestGoLogsPanic(t *testing.T) {
	cases := []struct {
		name   string
		value  any
		logger func(*rtesting.Buffer) Logger
		want   string
	}{
		{
			name:  "clue",
			value: errors.New("lease lost"),
			logger: func(buf *rtesting.Buffer) Logger {
				ctx := log.Context(context.Background(), log.WithOutput(buf))
				log.FlushAndDisableBuffering(ctx)
				return ClueLogger(ctx)
			},
			want: "Panic recovered: lease lost",
		},
		{
			name:  "std",
			value: 42,
			logger: func(buf *rtesting.Buffer) Logger {
				return StdLogger(stdlog.New(buf, "", 0))
			},
			want: "[ERROR] Panic recovered: 42",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf rtesting.Buffer
			Go(c.logger(&buf), func() { panic(c.value) })
			// The panic is logged after f returns.
			assert.Eventually(t, func() bool {
				out := buf.String()
				return strings.Contains(out, c.want) && strings.Contains(out, "goroutine.go")
			}, time.Second, 10*time.Millisecond, "log must contain the panic value and stack")
		})
	}
}
