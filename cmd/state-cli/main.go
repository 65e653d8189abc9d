package main

import (
	"os"

	"github.com/mitchellh/cli"
)

func main() {
	os.Exit(realMain(os.Args[1:], &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}))
}

func realMain(args []string, ui cli.Ui) int {
	meta := Meta{Ui: ui}
	runner := &cli.CLI{
		Name:       "state-cli",
		Args:       args,
		Commands:   commands(meta),
		HelpFunc:   cli.BasicHelpFunc("state-cli"),
		HelpWriter: os.Stdout,
	}
	code, err := runner.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return code
}

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"get": func() (cli.Command, error) {
			return &GetCommand{Meta: meta}, nil
		},
		"set": func() (cli.Command, error) {
			return &SetCommand{Meta: meta}, nil
		},
		"delete": func() (cli.Command, error) {
			return &DeleteCommand{Meta: meta}, nil
		},
	}
}
