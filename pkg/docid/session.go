package docid

import (
	"github.com/google/uuid"
)

// NoSession is the session ID used by requests that did not supply one.
const NoSession = "NOSESSION"

// NewSessionID returns a new random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// NormalizeSession maps an empty session ID to NoSession.
func NormalizeSession(session string) string {
	if session == "" {
		return NoSession
	}
	return session
}
