package worker

import (
	"github.com/spec-kit/branch-queue/internal/service"
)

// StartAnnouncementWorker registers announcement handlers.
func StartAnnouncementWorker(announcements *service.AnnouncementService) {
	if announcements == nil {
		return
	}
	announcements.RegisterHandlers()
}
