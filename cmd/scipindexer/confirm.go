package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dshills/scip-indexer/internal/languages"
)

// prompter asks yes/no questions on a terminal.
type prompter struct {
	assumeYes bool
	in        io.Reader
	out       io.Writer
	isTTY     func() bool
}

func newPrompter(assumeYes bool) *prompter {
	return &prompter{
		assumeYes: assumeYes,
		in:        os.Stdin,
		out:       os.Stderr,
		isTTY:     stdinIsTerminal,
	}
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm implements languages.ConfirmFunc. --yes proceeds without asking;
// without a terminal there is nobody to ask, so it declines.
func (p *prompter) confirm(ctx context.Context, message string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if !p.isTTY() {
		log.Printf("%s Declining: stdin is not a terminal (use --yes to install)", message)
		return false, nil
	}

	fmt.Fprintf(p.out, "%s [y/N]: ", message)

	input, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

var _ languages.ConfirmFunc = (*prompter)(nil).confirm
