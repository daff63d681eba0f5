package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/1xyz/coolrcon/rcon/client"
	"github.com/1xyz/coolrcon/tools"
	"github.com/davecgh/go-spew/spew"
	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	PasswordEnv = "RCON_PASSWORD"
	serviceName = "rcon"
)

// ErrCommandsFailed - at least one command passed to exec returned an error
var ErrCommandsFailed = errors.New("one or more commands failed")

const connOptions = `
Connection options:
    --config-file=<file>        YAML file with connection profiles [default: ].
    --profile=<name>            Profile to read from the config file [default: default].
    --host=<host>               Server host name or address.
    --port=<port>               Server port.
    --password=<password>       Server password. Falls back to $RCON_PASSWORD.
    --timeout-secs=<secs>       Timeout in seconds applied to connecting and to each
                                command. 0 waits indefinitely.

Metrics options:
    --prometheus-addr=<addr>    Start a prometheus server to expose metrics at this address. By default no server
                                is started. Example value is ":2122" [default: ]
`

var (
	execUsage = `usage: exec [options] <command>...

options:
    -h, --help
` + connOptions

	shellUsage = `usage: shell [options]

options:
    -h, --help
` + connOptions
)

func CmdExec(argv []string, version string) {
	opts, err := docopt.ParseArgs(execUsage, argv[1:], version)
	if err != nil {
		log.Fatalf("CmdExec: error parsing arguments. err=%v", err)
	}

	p, err := profileFromOpts(opts)
	if err != nil {
		log.Fatalf("CmdExec: %v", err)
	}
	if _, err := tools.InitializeMetrics(serviceName, p.PrometheusAddr); err != nil {
		log.Fatalf("CmdExec: InitializeMetrics: %v", err)
	}

	if err := RunExec(p, tools.OptsStrs(opts, "<command>"), os.Stdout); err != nil {
		log.Errorf("CmdExec: %v", err)
		os.Exit(1)
	}
}

func CmdShell(argv []string, version string) {
	opts, err := docopt.ParseArgs(shellUsage, argv[1:], version)
	if err != nil {
		log.Fatalf("CmdShell: error parsing arguments. err=%v", err)
	}

	p, err := profileFromOpts(opts)
	if err != nil {
		log.Fatalf("CmdShell: %v", err)
	}
	if _, err := tools.InitializeMetrics(serviceName, p.PrometheusAddr); err != nil {
		log.Fatalf("CmdShell: InitializeMetrics: %v", err)
	}

	lr := NewLineReader(os.Stdin, os.Stdout)
	defer lr.Close()
	if err := RunShell(p, lr, os.Stdout); err != nil {
		log.Fatalf("CmdShell: %v", err)
	}
}

// profileFromOpts resolves the connection profile. Flags override the
// profile read from --config-file.
func profileFromOpts(opts docopt.Opts) (Profile, error) {
	var base Profile
	if file := tools.OptsStr(opts, "--config-file"); file != "" {
		pf, err := LoadProfiles(file)
		if err != nil {
			return Profile{}, err
		}
		base, err = pf.Get(tools.OptsStr(opts, "--profile"))
		if err != nil {
			return Profile{}, err
		}
	}

	p := base.Merge(Profile{
		Host:           tools.OptsStr(opts, "--host"),
		Port:           tools.OptsInt(opts, "--port"),
		Password:       tools.OptsStrOrEnv(opts, "--password", PasswordEnv),
		Timeout:        Duration(tools.OptsSeconds(opts, "--timeout-secs")),
		PrometheusAddr: tools.OptsStr(opts, "--prometheus-addr"),
	})
	log.Debugf("profileFromOpts: %s", spew.Sdump(p.redacted()))
	return p, p.Validate()
}

func (p Profile) redacted() Profile {
	if p.Password != "" {
		p.Password = "*****"
	}
	return p
}

func newClient(p Profile) *client.Client {
	return client.NewClient(p.Host, p.Port, p.Password,
		client.WithConnectTimeout(time.Duration(p.Timeout)))
}

func commandContext(p Profile) (context.Context, context.CancelFunc) {
	if p.Timeout > 0 {
		return context.WithTimeout(context.Background(), time.Duration(p.Timeout))
	}
	return context.WithCancel(context.Background())
}

// RunExec sends each command in order over one connection and writes
// each response, or the error it produced, to w.
func RunExec(p Profile, cmds []string, w io.Writer) error {
	c := newClient(p)
	defer func() {
		if err := c.Close(); err != nil {
			log.Debugf("RunExec: close err=%v", err)
		}
	}()

	failed := 0
	for _, cmd := range cmds {
		if !runOne(c, p, cmd, w) {
			failed++
		}
	}
	if failed > 0 {
		return errors.Wrapf(ErrCommandsFailed, "%d of %d", failed, len(cmds))
	}
	return nil
}

func runOne(c *client.Client, p Profile, cmd string, w io.Writer) bool {
	ctx, cancel := commandContext(p)
	defer cancel()

	resp, err := c.Send(ctx, cmd)
	if err != nil {
		fmt.Fprintln(w, err.Error())
		return false
	}
	fmt.Fprintln(w, resp)
	return true
}

const shellHelp = `Enter a command to send it to the server. Other commands:
  .close   drop the connection; the next command reconnects
  .help    show this message
  .quit    exit the shell`

// RunShell reads commands from lr until .quit or end of input
func RunShell(p Profile, lr LineReader, w io.Writer) error {
	c := newClient(p)
	defer func() {
		if err := c.Close(); err != nil {
			log.Debugf("RunShell: close err=%v", err)
		}
	}()

	prompt := fmt.Sprintf("rcon %s:%d> ", p.Host, p.Port)
	for {
		line, err := lr.ReadLine(prompt)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
		case ".quit":
			return nil
		case ".help":
			fmt.Fprintln(w, shellHelp)
		case ".close":
			if err := c.Close(); err != nil {
				fmt.Fprintln(w, err.Error())
			}
		default:
			runOne(c, p, line, w)
		}
	}
}
