package consumer

import (
	"os"

	"github.com/google/uuid"
)

// NewWorkerID returns a process-unique worker identity: hostname plus a
// random token. Generated once at startup and fixed for the process
// lifetime.
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()
}
