package taskq

import (
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
)

// ProcessIdentity returns a new process identity of the form
// "{pid}@{hostname}-{ulid}". The ULID keeps identities unique when a
// process runs several nodes.
func ProcessIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%d@%s-%s", os.Getpid(), host, ulid.Make())
}
