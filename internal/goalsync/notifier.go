package goalsync

import "log"

// Level is the severity of a Notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a user-visible message. Persistent notices stay until the user
// acts on them; the rest are dismissible.
type Notice struct {
	Level      Level
	Title      string
	Message    string
	Persistent bool
}

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type logNotifier struct {
	logger *log.Logger
}

func (l logNotifier) Notify(n Notice) {
	l.logger.Printf("%s: %s: %s", n.Level, n.Title, n.Message)
}
