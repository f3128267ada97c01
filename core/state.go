package core

import (
	"strings"

	"pkt.systems/attackdeck/schema"
)

const (
	bannerError    = "Process terminated with error"
	bannerStopped  = "Process stopped"
	bannerExitCode = "Process exited with code"
)

// stateUpdate is a partial change to a tab's execution state. Nil fields are
// left untouched.
type stateUpdate struct {
	Status      *schema.SessionStatus
	Running     *bool
	Loading     *bool
	IframeReady *bool
}

func statusPtr(status schema.SessionStatus) *schema.SessionStatus { return &status }

func boolPtr(v bool) *bool { return &v }

// reconcile applies update to t. Every execution state change goes through
// here. Running is only a request: the stored status is the single source of
// truth, so an explicit Status wins over Running. It returns the termination
// banner appended to the transcript, if any.
func reconcile(t *tab, update stateUpdate) string {
	status := t.Status
	if update.Status != nil {
		status = *update.Status
	} else if update.Running != nil {
		switch {
		case *update.Running && status != schema.StatusRunning:
			status = schema.StatusRunning
		case !*update.Running && status == schema.StatusRunning:
			status = schema.StatusIdle
		}
	}
	t.Status = status
	if update.Loading != nil {
		t.Loading = *update.Loading
	}
	if update.IframeReady != nil {
		t.IframeReady = *update.IframeReady
	}

	if !status.Terminal() {
		return ""
	}
	t.Loading = false
	t.IframeReady = false
	t.disarmWatchdog()

	var banner string
	switch status {
	case schema.StatusError:
		banner = bannerError
	case schema.StatusStopped:
		banner = bannerStopped
	default:
		return ""
	}
	if last, ok := t.output.Last(); ok && announcesTermination(last) {
		return ""
	}
	t.output.Append(banner)
	return banner
}

func announcesTermination(line string) bool {
	return strings.Contains(line, bannerError) ||
		strings.Contains(line, bannerStopped) ||
		strings.Contains(line, bannerExitCode)
}
