package instance

import (
	"os"

	"github.com/angelmondragon/duka-backend/pkg/env"
)

// EnvInstanceID overrides the derived identifier, e.g. with a pod name.
const EnvInstanceID = "DUKA_INSTANCE_ID"

// GetID returns the identifier this process logs under: the override when set,
// otherwise "<service>@<hostname>".
func GetID(service string) string {
	if id := env.Get(EnvInstanceID, ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return service + "@" + host
}
