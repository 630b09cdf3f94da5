package tui

import "strings"

// Separator divides exchanges in the chat history.
var Separator = strings.Repeat("-", 46)

// History is the chat transcript, newest exchange first.
type History struct {
	text string
}

// Add prepends one prompt/answer exchange.
func (h *History) Add(prompt, answer string) {
	h.text = prompt + "\n\n" + answer + "\n\n" + Separator + "\n\n" + h.text
}

func (h *History) Clear() { h.text = "" }

func (h *History) String() string { return h.text }

func (h *History) Empty() bool { return h.text == "" }
