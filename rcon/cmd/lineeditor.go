package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const (
	historyFileName = ".rcon_history"
	historyLimit    = 500
)

// LineReader reads one line of shell input. It returns io.EOF when the
// input is exhausted or the user interrupts.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader returns a readline backed editor with history when in is
// a terminal, and a plain line scanner otherwise.
func NewLineReader(in io.Reader, out io.Writer) LineReader {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return newScanReader(in, out)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath(),
		HistoryLimit:           historyLimit,
		DisableAutoSaveHistory: true,
		Stdin:                  f,
		Stdout:                 out,
	})
	if err != nil {
		log.Warnf("NewLineReader: readline init failed err=%v, using basic input", err)
		return newScanReader(in, out)
	}
	return &editReader{rl: rl}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

type editReader struct {
	rl *readline.Instance
}

func (e *editReader) ReadLine(prompt string) (string, error) {
	e.rl.SetPrompt(prompt)
	line, err := e.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		e.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (e *editReader) Close() error {
	return e.rl.Close()
}

type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in), out: out}
}

func (s *scanReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scanReader) Close() error {
	return nil
}
