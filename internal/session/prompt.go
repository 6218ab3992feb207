package session

import (
	"io"

	"github.com/manifoldco/promptui"
	"gitlab.com/tozd/go/errors"
)

// ErrAborted is returned when the user declines to continue or interrupts a prompt
var ErrAborted = errors.Base("aborted")

// Prompter asks the user questions. PromptUI implements it for terminals.
type Prompter interface {
	// Select returns the index of the chosen item
	Select(label string, items []string) (int, error)
	// Input returns free text, offering def as the editable default
	Input(label, def string, validate func(string) error) (string, error)
	// Confirm asks a yes/no question
	Confirm(label string, def bool) (bool, error)
}

// PromptUI prompts on a terminal. Nil streams mean stdin and stdout.
type PromptUI struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

var _ Prompter = PromptUI{}

func (p PromptUI) Select(label string, items []string) (int, error) {
	s := promptui.Select{
		Label:  label,
		Items:  items,
		Stdin:  p.Stdin,
		Stdout: p.Stdout,
	}
	idx, _, err := s.Run()
	if err != nil {
		return 0, promptErr(err)
	}
	return idx, nil
}

func (p PromptUI) Input(label, def string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validate,
		Stdin:     p.Stdin,
		Stdout:    p.Stdout,
	}
	value, err := prompt.Run()
	if err != nil {
		return "", promptErr(err)
	}
	return value, nil
}

func (p PromptUI) Confirm(label string, def bool) (bool, error) {
	items := []string{"No", "Yes"}
	cursor := 0
	if def {
		cursor = 1
	}
	s := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: cursor,
		HideHelp:  true,
		Stdin:     p.Stdin,
		Stdout:    p.Stdout,
	}
	idx, _, err := s.Run()
	if err != nil {
		return false, promptErr(err)
	}
	return idx == 1, nil
}

func promptErr(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return errors.WrapWith(err, ErrAborted)
	}
	return errors.Errorf("prompt failed: %w", err)
}
