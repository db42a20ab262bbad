package jobs

import (
	"log"
	"time"

	"github.com/talka-ai/talka-backend/internal/services"
)

// CleanupJob periodically drops abandoned signup sessions so a closed browser
// tab does not pin session state in memory forever
type CleanupJob struct {
	sessions *services.SignupManager
	interval time.Duration
	stop     chan struct{}
	running  bool
}

// NewCleanupJob creates a new session cleanup job
func NewCleanupJob(sessions *services.SignupManager, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduled cleanup loop
func (j *CleanupJob) Start() {
	if j.running {
		log.Println("Cleanup job already running")
		return
	}
	j.running = true
	log.Println("Starting signup session cleanup job...")

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				if removed := j.sessions.CleanupExpired(); removed > 0 {
					log.Printf("Cleaned up %d expired signup sessions", removed)
				}
			}
		}
	}()
}

// Stop halts the cleanup loop
func (j *CleanupJob) Stop() {
	if !j.running {
		return
	}
	j.running = false
	close(j.stop)
}
