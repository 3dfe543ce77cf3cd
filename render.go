package main

import (
	"fmt"
	"io"
	"time"

	"github.com/johndosdos/conecta/internal/model"
)

// render prints each entry of the view once. Durable entries are tracked by
// key, so a snapshot that inserts earlier messages still prints them. A
// durable entry whose text was already printed as pending is not printed
// again.
func render(w io.Writer, updates <-chan []model.Entry, self string) {
	seen := make(map[string]bool)
	pending := make(map[string]int) // printed pending entries not yet confirmed, by text

	for entries := range updates {
		inView := make(map[string]int)
		for _, e := range entries {
			if e.Origin == model.Durable {
				if seen[e.Key] {
					continue
				}
				seen[e.Key] = true
				if pending[e.Text] > 0 {
					pending[e.Text]--
					continue
				}
				fmt.Fprintln(w, formatEntry(e, self))
				continue
			}

			inView[e.Text]++
			if inView[e.Text] > pending[e.Text] {
				pending[e.Text]++
				fmt.Fprintln(w, formatEntry(e, self))
			}
		}

		// Pending entries dropped by a snapshot without a durable copy are
		// forgotten.
		for text, n := range pending {
			if n > inView[text] {
				if inView[text] == 0 {
					delete(pending, text)
				} else {
					pending[text] = inView[text]
				}
			}
		}
	}
}

func formatEntry(e model.Entry, self string) string {
	who := e.SenderID
	switch {
	case who == "":
		who = "~"
	case who == self:
		who = "me"
	}

	mark := ""
	if e.Origin == model.Pending {
		mark = " *"
	}
	return fmt.Sprintf("[%s] %s: %s%s", time.UnixMilli(e.Timestamp).Format("15:04"), who, e.Text, mark)
}
