package instance

import (
	"os"

	"github.com/angelmondragon/yogaflow-backend/pkg/env"
)

// ID identifies this process in logs and lock ownership. It prefers an
// explicit YOGAFLOW_INSTANCE_ID, then the platform dyno name, then the
// hostname.
func ID() string {
	if id := env.First("", "YOGAFLOW_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
