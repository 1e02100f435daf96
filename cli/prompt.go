package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"facette.io/natsort"
	"github.com/manifoldco/promptui"
)

const doneChoice = "[Done]"

// ErrNoChoices is returned when a selection is offered nothing to choose from.
var ErrNoChoices = errors.New("nothing to choose from")

// Prompter asks questions on a terminal.
type Prompter struct {
	In  io.ReadCloser
	Out io.WriteCloser
}

// NewPrompter creates a prompter on the process's standard input and output.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

// Confirm asks a yes/no question. Answering no is not an error.
func (p *Prompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.In,
		Stdout:    p.Out,
	}

	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// Select asks for one of choices, offered in natural order and searchable
// by prefix.
func (p *Prompter) Select(label string, choices ...string) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}

	items := sorted(choices)

	sel := &promptui.Select{
		Label:    label,
		Items:    items,
		Searcher: prefixSearcher(items, 0),
		Stdin:    p.In,
		Stdout:   p.Out,
	}

	_, value, err := sel.Run()

	return value, err
}

// MultiSelect asks for any number of choices, one at a time, until the user
// picks [Done] or nothing is left. The result keeps the order of choices.
func (p *Prompter) MultiSelect(label string, choices ...string) ([]string, error) {
	if len(choices) == 0 {
		return nil, nil
	}

	remaining := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		remaining[c] = struct{}{}
	}

	selected := make(map[string]struct{}, len(choices))

	for len(remaining) > 0 {
		names := make([]string, 0, len(remaining))
		for name := range remaining {
			names = append(names, name)
		}

		items := append([]string{doneChoice}, sorted(names)...)

		sel := &promptui.Select{
			Label:    label,
			Items:    items,
			Searcher: prefixSearcher(items, 1),
			Stdin:    p.In,
			Stdout:   p.Out,
		}

		idx, value, err := sel.Run()
		if err != nil {
			return nil, err
		}

		if idx == 0 {
			break
		}

		selected[value] = struct{}{}
		delete(remaining, value)
	}

	var out []string

	for _, c := range choices {
		if _, ok := selected[c]; ok {
			out = append(out, c)
			delete(selected, c)
		}
	}

	return out, nil
}

func sorted(choices []string) []string {
	out := append([]string(nil), choices...)
	natsort.Sort(out)

	return out
}

// prefixSearcher matches items from index first on by prefix.
func prefixSearcher(items []string, first int) func(input string, index int) bool {
	return func(input string, index int) bool {
		if index < first || input == "" {
			return false
		}

		return strings.HasPrefix(items[index], input)
	}
}
