package screentime

import "time"

// Alert tiers are advisory. Nothing is enforced from them.
type Alert struct {
	Level   int
	Message string
}

const (
	messageIdle   = "Not tracking right now"
	messageCalm   = "Want to use it a little longer?"
	messageRest   = "Time to rest your eyes soon"
	messageStrong = "Looking for a long time makes your eyes tired"
	messageStop   = "Rest your eyes when you finish"
)

// AlertFor maps elapsed usage to an alert tier.
func AlertFor(elapsed time.Duration) Alert {
	switch m := elapsed.Minutes(); {
	case m < 10:
		return Alert{Level: 0, Message: messageCalm}
	case m < 20:
		return Alert{Level: 1, Message: messageRest}
	case m < 30:
		return Alert{Level: 1, Message: messageStrong}
	default:
		return Alert{Level: 2, Message: messageStop}
	}
}
