// Package prompt implements the interactive provider chooser used when
// a box version is available from multiple providers.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/git-pkgs/boxes/internal/core"
)

// New returns a Chooser that prints the candidate providers to out and
// reads a 1-based choice from in. An empty line accepts the default.
func New(in io.Reader, out io.Writer) core.Chooser {
	reader := bufio.NewReader(in)
	return func(names []string, def int) (int, error) {
		fmt.Fprintln(out, "This box is available from multiple providers. Choose one:")
		for i, name := range names {
			fmt.Fprintf(out, " %d) %s\n", i+1, name)
		}
		hasDefault := def >= 1 && def <= len(names)

		for {
			if hasDefault {
				fmt.Fprintf(out, "Enter a number [%d]: ", def)
			} else {
				fmt.Fprint(out, "Enter a number: ")
			}

			line, err := reader.ReadString('\n')
			choice := strings.TrimSpace(line)
			if choice == "" && hasDefault {
				return def, nil
			}
			if n, convErr := strconv.Atoi(choice); convErr == nil && n >= 1 && n <= len(names) {
				return n, nil
			}
			if err != nil {
				return 0, fmt.Errorf("reading provider choice: %w", err)
			}
			fmt.Fprintf(out, "Please enter a number between 1 and %d.\n", len(names))
		}
	}
}

// Terminal returns a stdin/stderr chooser when stdin is a terminal. ok
// is false in non-interactive contexts, where resolution should fail
// rather than block on a prompt nobody will answer.
func Terminal() (chooser core.Chooser, ok bool) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, false
	}
	return New(os.Stdin, os.Stderr), true
}
