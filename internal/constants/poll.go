package constants

import "time"

const (
	// MinPollInterval is the smallest allowed polling interval. Shorter
	// intervals get rate limited by the upstream with HTTP 429.
	MinPollInterval = 60 * time.Second

	// DefaultRequestTimeout bounds a single upstream fetch.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultPublishWorkers is the number of concurrent store writes per cycle.
	DefaultPublishWorkers = 4

	// DefaultNotifyTimeout bounds waiting for a notification publish.
	DefaultNotifyTimeout = 5 * time.Second
)

// State keys owned by the agent.
const (
	ConnectionState  = "info.connection"
	TriggerPollState = "trigger_poll"
	FencePrefix      = "fence."
	UserPrefix       = "user."
)
