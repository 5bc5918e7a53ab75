package session

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLen = 64
	// sun_path is 104 bytes on macOS and 108 on Linux.
	maxSocketPath = 103
)

var nameChars = regexp.MustCompile(`^[a-z0-9_-]+$`)

// InvalidNameError reports a session name that cannot be used for a
// session directory and daemon socket.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid session name %q: %s", e.Name, e.Reason)
}

// ValidateName checks that name can be used as a session. Names are
// lowercase letters, digits, '-' and '_', do not start with '-', and must
// leave the daemon socket path within the platform limit.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &InvalidNameError{Name: name, Reason: "name is empty"}
	case len(name) > maxNameLen:
		return &InvalidNameError{Name: name, Reason: fmt.Sprintf("longer than %d characters", maxNameLen)}
	case !nameChars.MatchString(name):
		return &InvalidNameError{Name: name, Reason: "use only a-z, 0-9, '-' and '_'"}
	case strings.HasPrefix(name, "-"):
		return &InvalidNameError{Name: name, Reason: "must not start with '-'"}
	}
	if n := len(SocketPath(name)); n > maxSocketPath {
		return &InvalidNameError{
			Name:   name,
			Reason: fmt.Sprintf("socket path is %d bytes, limit is %d; pick a shorter name or set %s", n, maxSocketPath, EnvHome),
		}
	}
	return nil
}
