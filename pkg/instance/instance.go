package instance

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/pkg/env"
)

const EnvWorkerID = "SHOPLEDGER_WORKER_ID"

// GetID returns the worker instance identifier used as the owner value of
// distributed locks. Falls back to <hostname>-<short uuid> so two processes on
// one host never share an id.
func GetID() string {
	if id := env.Get(EnvWorkerID, ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
