package main

import (
	"os"

	cmd_rcon "github.com/1xyz/coolrcon/rcon/cmd"
	"github.com/1xyz/coolrcon/tools"
	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
)

const version = "0.1.alpha"

func init() {
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

func main() {
	usage := `usage: rcon [--version] [(--verbose|--quiet)] [--help]
           <command> [<args>...]
options:
   -h, --help
   --verbose      Change the logging level verbosity
The commands are:
   exec           Run one or more commands against a server
   shell          Start an interactive console
See 'rcon <command> --help' for more information on a specific command.
`
	parser := &docopt.Parser{OptionsFirst: true}
	args, err := parser.ParseArgs(usage, nil, version)
	if err != nil {
		log.Errorf("error = %v", err)
		os.Exit(1)
	}

	cmd := args["<command>"].(string)
	cmdArgs := args["<args>"].([]string)

	verbose := tools.OptsBool(args, "--verbose")
	quiet := tools.OptsBool(args, "--quiet")
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else if quiet {
		log.SetLevel(log.WarnLevel)
	}

	log.Debugf("global arguments: %v", args)
	log.Debugf("command arguments: %v %v", cmd, cmdArgs)

	RunCommand(cmd, cmdArgs, version)
}

func RunCommand(c string, args []string, version string) {
	argv := append([]string{c}, args...)
	switch c {
	case "exec":
		cmd_rcon.CmdExec(argv, version)
	case "shell":
		cmd_rcon.CmdShell(argv, version)
	default:
		log.Fatalf("RunCommand: %s is not a supported command. See 'rcon help'", c)
	}
}
