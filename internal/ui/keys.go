package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit         key.Binding
	Next         key.Binding
	Previous     key.Binding
	StartSync    key.Binding
	StopSync     key.Binding
	SendQueue    key.Binding
	SendMessage  key.Binding
	Like         key.Binding
	ShowReceipts key.Binding
	ShowTimeline key.Binding
	ShowEvents   key.Binding
	ShowStorage  key.Binding
	Paginate     key.Binding
	MarkAsRead   key.Binding
	Jump         key.Binding
	ConfirmJump  key.Binding
	CancelJump   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:         key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		Next:         key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "next room")),
		Previous:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "previous room")),
		StartSync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start sync")),
		StopSync:     key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "stop sync")),
		SendQueue:    key.NewBinding(key.WithKeys("Q"), key.WithHelp("Q", "toggle send queue")),
		SendMessage:  key.NewBinding(key.WithKeys("M"), key.WithHelp("M", "send a message")),
		Like:         key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "like the last message")),
		ShowReceipts: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "read receipts")),
		ShowTimeline: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "timeline")),
		ShowEvents:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "events")),
		ShowStorage:  key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "storage internals")),
		Paginate:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "back-paginate")),
		MarkAsRead:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark as read")),
		Jump:         key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "jump to room")),
		ConfirmJump:  key.NewBinding(key.WithKeys("enter")),
		CancelJump:   key.NewBinding(key.WithKeys("esc", "ctrl+c")),
	}
}
