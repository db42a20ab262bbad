package services

import (
	"context"
	"fmt"
)

// SyncInitiator wraps the data-sync initiation calls for imported business
// apps. It only asks the platform to start a job and reports whether the
// request was accepted; the jobs finish out-of-band via webhook, so nothing
// here waits on them.
type SyncInitiator struct {
	graph GraphAPI
}

// NewSyncInitiator creates a new sync initiator
func NewSyncInitiator(graph GraphAPI) *SyncInitiator {
	return &SyncInitiator{graph: graph}
}

// Initiate requests one sync job and returns the platform's request id
func (si *SyncInitiator) Initiate(ctx context.Context, phoneNumberID, accessToken string, job SyncJobType) (string, error) {
	var syncType string
	switch job {
	case SyncJobContacts:
		syncType = SyncTypeContacts
	case SyncJobHistory:
		syncType = SyncTypeHistory
	default:
		return "", fmt.Errorf("unknown sync job type: %s", job)
	}

	return si.graph.RequestSync(ctx, phoneNumberID, accessToken, syncType)
}
