package chat

import "github.com/johndosdos/conecta/internal/model"

// ShouldSuppress reports whether a broker delivery is an echo of this
// session's own send: its text equals the text of the last entry in the view.
//
// Known limitation: two participants sending the same text back to back
// lose the second one until the next durable snapshot restores it.
func ShouldSuppress(candidate string, recent []model.Entry) bool {
	if len(recent) == 0 {
		return false
	}
	return recent[len(recent)-1].Text == candidate
}
