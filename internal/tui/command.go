package tui

import (
	"strconv"
	"strings"

	"github.com/matheus3301/bazaar/internal/chat"
)

// Command names understood by the : prompt.
const (
	CmdSearch     = "search"
	CmdRoom       = "room"
	CmdLogin      = "login"
	CmdLogout     = "logout"
	CmdConnect    = "connect"
	CmdDisconnect = "disconnect"
	CmdRefresh    = "refresh"
	CmdHelp       = "help"
	CmdQuit       = "quit"
)

var commandAliases = map[string]string{
	"s":    CmdSearch,
	"find": CmdSearch,
	"r":    CmdRoom,
	"open": CmdRoom,
	"chat": CmdRoom,
	"h":    CmdHelp,
	"?":    CmdHelp,
	"q":    CmdQuit,
	"q!":   CmdQuit,
	"exit": CmdQuit,
}

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':') and
// resolves aliases to their command name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if alias, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = alias
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// matchRoom picks the room a :room argument refers to: a numeric room id,
// else the first room whose peer name or email contains arg.
func matchRoom(rooms []chat.Room, arg string) (int64, bool) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if arg == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return id, true
	}
	needle := strings.ToLower(arg)
	for _, r := range rooms {
		if strings.Contains(strings.ToLower(r.PeerDisplayName), needle) ||
			strings.Contains(strings.ToLower(r.PeerEmail), needle) {
			return r.ID, true
		}
	}
	return 0, false
}
