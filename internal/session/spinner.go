package session

import (
	"github.com/pterm/pterm"
)

// Spinner shows that something is running
type Spinner interface {
	UpdateText(text string)
	Stop() error
}

// SpinnerFunc starts a spinner with the given text
type SpinnerFunc func(text string) (Spinner, error)

// TerminalSpinner starts a pterm spinner that clears itself when stopped
func TerminalSpinner(text string) (Spinner, error) {
	s, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type noopSpinner struct{}

func (noopSpinner) UpdateText(string) {}
func (noopSpinner) Stop() error       { return nil }
