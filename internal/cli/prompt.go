package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/output"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// interactive reports whether stdin can host a prompt.
func interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resolveResult drives a dialog flow to completion at the terminal: choices
// become numbered menus, inputs become line prompts, confirms become y/N
// questions. Without a terminal on stdin, interactive steps fail instead of
// hanging so scripts get a clear error.
func (a *app) resolveResult(ctx context.Context, res *action.Result) error {
	for {
		if res == nil {
			return nil
		}

		switch res.Type {
		case action.TypeSuccess:
			output.Successf("%s", res.Message)
			return nil

		case action.TypeInfo:
			if res.Title != "" {
				fmt.Println(res.Title)
			}
			if res.Message != "" {
				fmt.Println(res.Message)
			}
			return nil

		case action.TypeError:
			return errors.New(res.Message)

		case action.TypeProgress:
			if res.Message != "" {
				fmt.Println(res.Message)
			}
			return nil

		case action.TypeNavigation:
			if res.Message != "" {
				output.Successf("%s", res.Message)
			}
			if p, ok := a.store.Pane(res.TargetPaneID); ok && p.Live() && tmux.InTmux() {
				if err := a.tmux.SelectPane(p.TerminalPaneID); err != nil {
					a.logger.Debug("could not focus pane", "pane", p.ID, "error", err)
				}
			}
			return nil

		case action.TypeConfirm:
			confirmed, err := askConfirm(res)
			if err != nil {
				return err
			}
			if confirmed {
				if res.OnConfirm == nil {
					return nil
				}
				res = res.OnConfirm(ctx)
				continue
			}
			if res.OnCancel == nil {
				fmt.Println("Cancelled.")
				return nil
			}
			res = res.OnCancel(ctx)

		case action.TypeChoice:
			idx, err := askChoice(res)
			if err != nil {
				return err
			}
			if res.OnSelect == nil {
				return nil
			}
			res = res.OnSelect(ctx, res.Options[idx].ID)

		case action.TypeInput:
			value, err := askInput(res)
			if err != nil {
				return err
			}
			if res.OnSubmit == nil {
				return nil
			}
			res = res.OnSubmit(ctx, value)

		default:
			return nil
		}
	}
}

func promptHeader(res *action.Result) {
	if res.Title != "" {
		fmt.Println(res.Title)
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	}
}

func askConfirm(res *action.Result) (bool, error) {
	if !interactive() {
		return false, fmt.Errorf("%q needs confirmation; rerun from a terminal", res.Title)
	}
	promptHeader(res)

	confirm := res.ConfirmLabel
	if confirm == "" {
		confirm = "Confirm"
	}
	fmt.Printf("%s? [y/N]: ", confirm)

	line, err := readLine()
	if err != nil {
		return false, err
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func askChoice(res *action.Result) (int, error) {
	if !interactive() {
		return 0, fmt.Errorf("%q needs a choice; rerun from a terminal or pass the choice as a flag", res.Title)
	}
	promptHeader(res)

	def := 0
	for i, opt := range res.Options {
		if opt.Default {
			def = i
		}
	}
	for i, opt := range res.Options {
		marker := " "
		if i == def {
			marker = "*"
		}
		line := fmt.Sprintf("%s %d) %s", marker, i+1, opt.Label)
		if opt.Description != "" {
			line += "  - " + opt.Description
		}
		if opt.Danger {
			line += " (destructive)"
		}
		fmt.Println(line)
	}
	fmt.Printf("Choice [%d]: ", def+1)

	line, err := readLine()
	if err != nil {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(res.Options) {
		return 0, fmt.Errorf("pick a number between 1 and %d", len(res.Options))
	}
	return n - 1, nil
}

func askInput(res *action.Result) (string, error) {
	if !interactive() {
		return "", fmt.Errorf("%q needs input; rerun from a terminal", res.Title)
	}
	promptHeader(res)

	if res.DefaultValue != "" {
		fmt.Printf("> [%s] ", res.DefaultValue)
	} else if res.Placeholder != "" {
		fmt.Printf("> (%s) ", res.Placeholder)
	} else {
		fmt.Print("> ")
	}

	line, err := readLine()
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" && res.DefaultValue != "" {
		return res.DefaultValue, nil
	}
	return line, nil
}

func readLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return line, nil
}
