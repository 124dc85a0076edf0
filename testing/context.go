package testing

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"goa.design/clue/log"
)

// reset is the ANSI escape code for resetting the terminal color.
const reset = "\033[0m"

// start is the reference time used to render log timestamps as elapsed
// milliseconds.
var start = time.Now()

// NewTestContext returns a new context with a debug logger that writes to
// the terminal using FormatTerminal when attached to one.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	if log.IsTerminal() {
		return log.Context(context.Background(), log.WithDebug(), log.WithFormat(FormatTerminal))
	}
	return log.Context(context.Background(), log.WithDebug())
}

// NewBufferedLogContext returns a new context and buffer for capturing log
// output as JSON entries, one per line.
func NewBufferedLogContext(t *testing.T) (context.Context, *Buffer) {
	t.Helper()
	var buf Buffer
	ctx := log.Context(context.Background(), log.WithOutput(&buf), log.WithFormat(log.FormatJSON), log.WithDebug())
	log.FlushAndDisableBuffering(ctx)
	return ctx, &buf
}

// FormatTerminal formats a log entry for terminal output. Timestamps are
// rendered as milliseconds elapsed since the test binary started which
// makes heartbeat and lock timings easy to follow.
func FormatTerminal(e *log.Entry) []byte {
	var b bytes.Buffer
	b.WriteString(e.Severity.Color())
	b.WriteString(e.Severity.Code())
	b.WriteString(reset)
	b.WriteString(fmt.Sprintf("[%05d]", int(e.Time.Sub(start)/time.Millisecond)))
	for _, kv := range e.KeyVals {
		b.WriteByte(' ')
		b.WriteString(e.Severity.Color())
		b.WriteString(kv.K)
		b.WriteString(reset)
		b.WriteString(fmt.Sprintf("=%v", kv.V))
	}
	b.WriteByte('\n')
	return b.Bytes()
}
