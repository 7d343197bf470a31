package cli

import (
	prompt "github.com/c-bata/go-prompt"
)

func Complete(in prompt.Document) []prompt.Suggest {
	if in.TextBeforeCursor() == "" {
		return []prompt.Suggest{}
	}

	s := []prompt.Suggest{
		{Text: "switches", Description: "List all connected switches."},
		{Text: "flows [dpid]", Description: "List installed flow rules on a switch."},
		{Text: "ports [dpid]", Description: "Show port counters of a switch."},
		{Text: "hosts [dpid]", Description: "Show learned host bindings on a switch."},
		{Text: "loads", Description: "Show last-known backend load samples."},
		{Text: "stats", Description: "Show VIP request distribution."},
		{Text: "agent", Description: "Show decision engine status."},
		{Text: "train [on|off]", Description: "Toggle training mode."},
		{Text: "save [path]", Description: "Save an agent checkpoint."},
		{Text: "load [path]", Description: "Load an agent checkpoint."},
		{Text: "clear [dpid]", Description: "Remove all rules from a switch."},
		{Text: "quit", Description: "Clean up and quit the controller."},
	}

	// |FilterHasPrefix| checks whether the completion.Text begins with sub.
	return prompt.FilterHasPrefix(s, in.GetWordBeforeCursor(), true)
}
