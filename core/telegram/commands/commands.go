// Package commands describes slash commands shown in the bot menu.
package commands

import tele "gopkg.in/telebot.v4"

// Command is the menu metadata of a slash command.
type Command struct {
	Description string
	Hidden      bool
	Aliases     []string
}

// Menu returns the entry passed to setMyCommands.
func (c Command) Menu(name string) tele.Command {
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return tele.Command{Text: name, Description: c.Description}
}
