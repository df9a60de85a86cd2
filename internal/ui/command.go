package ui

import (
	"errors"
	"strings"
)

// CommandKind is what a line typed into the call prompt asks for.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdChat
	CmdMute
	CmdVideo
	CmdShare
	CmdKick
	CmdQuit
	CmdHelp
)

var (
	ErrUnknownCommand = errors.New("unknown command, try /help")
	ErrMissingTarget  = errors.New("usage: /kick <name>")
)

// Command is a parsed prompt line.
type Command struct {
	Kind CommandKind
	Arg  string
}

// HelpText lists the slash commands.
const HelpText = "/mute  /video  /share  /kick <name>  /quit  (tab switches chat and people)"

// ParseInput turns a prompt line into a Command. Anything not starting with
// a slash is chat.
func ParseInput(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdChat, Arg: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "mute", "unmute", "m":
		return Command{Kind: CmdMute}, nil
	case "video", "camera", "v":
		return Command{Kind: CmdVideo}, nil
	case "share", "screen", "s":
		return Command{Kind: CmdShare}, nil
	case "kick":
		if arg == "" {
			return Command{}, ErrMissingTarget
		}
		return Command{Kind: CmdKick, Arg: arg}, nil
	case "quit", "leave", "exit", "q":
		return Command{Kind: CmdQuit}, nil
	case "help", "h", "?":
		return Command{Kind: CmdHelp}, nil
	default:
		return Command{}, ErrUnknownCommand
	}
}
