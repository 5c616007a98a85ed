package main

import (
	"fmt"
	"strconv"
	"strings"
)

// commandKind identifies a slash command typed at the chat prompt.
type commandKind int

const (
	cmdNone commandKind = iota
	cmdHelp
	cmdQuit
	cmdClear
	cmdModels
	cmdModel
	cmdTokens
	cmdTemp
	cmdFormat
	cmdStatus
	cmdHistory
)

type command struct {
	kind  commandKind
	arg   string
	num   int
	value float64
	on    bool
}

const chatHelp = `Commands:
  /clear            start the conversation over
  /models           list available models
  /model <file>     switch to another model
  /tokens <n>       set the reply token budget
  /temp <t>         set the sampling temperature
  /format on|off    toggle the static prompt format
  /status           show context usage
  /history [n]      show the last n transcript messages
  /quit             leave
Ctrl-C while a reply streams stops it.`

// parseCommand parses a line starting with "/". Plain text yields cmdNone.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, nil
	}
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/help", "/?":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit", "/q":
		return command{kind: cmdQuit}, nil
	case "/clear", "/reset":
		return command{kind: cmdClear}, nil
	case "/models":
		return command{kind: cmdModels}, nil
	case "/status":
		return command{kind: cmdStatus}, nil
	case "/model":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /model <file>")
		}
		return command{kind: cmdModel, arg: args[0]}, nil
	case "/tokens":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /tokens <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return command{}, fmt.Errorf("tokens must be a positive integer")
		}
		return command{kind: cmdTokens, num: n}, nil
	case "/temp":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /temp <t>")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 {
			return command{}, fmt.Errorf("temperature must be a non-negative number")
		}
		return command{kind: cmdTemp, value: v}, nil
	case "/format":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /format on|off")
		}
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			return command{kind: cmdFormat, on: true}, nil
		case "off", "false", "0":
			return command{kind: cmdFormat, on: false}, nil
		}
		return command{}, fmt.Errorf("usage: /format on|off")
	case "/history":
		n := 10
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return command{}, fmt.Errorf("history length must be a positive integer")
			}
			n = v
		}
		return command{kind: cmdHistory, num: n}, nil
	}
	return command{}, fmt.Errorf("unknown command %s (try /help)", name)
}
