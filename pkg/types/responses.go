package types

import (
	"time"

	"github.com/charlie0129/acpibatt/pkg/poller"
)

// StatusResponse is returned by GET /status.
// This struct is shared between the daemon and client packages.
type StatusResponse struct {
	poller.Status
	// NextFreshRead is the next scheduled fresh read, if one is scheduled.
	NextFreshRead *time.Time `json:"nextFreshRead,omitempty"`
}

// PollResponse is returned by POST /poll. Started is false when a poll
// cycle was already in flight.
type PollResponse struct {
	Path    poller.Path `json:"path"`
	Started bool        `json:"started"`
}
