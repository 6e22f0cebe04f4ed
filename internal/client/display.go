package client

import "github.com/n0needt0/go-goodies/log"

// Display surfaces inbound messages to the user. It never feeds back into client state.
type Display interface {
	Show(from, text string)
}

type LogDisplay struct{}

func (LogDisplay) Show(from, text string) {
	log.Infof("message from %s: %s", from, text)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(from, text string)

func (f DisplayFunc) Show(from, text string) {
	f(from, text)
}
