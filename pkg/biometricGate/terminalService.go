package biometricGate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TerminalPresenceService is an IBiometricService for headless hosts: it asks
// the operator sitting at the terminal to type "yes". Anything else, including
// the cancel label, counts as a cancellation.
type TerminalPresenceService struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPresenceService reads answers from in and writes prompts to out.
func NewTerminalPresenceService(in io.Reader, out io.Writer) *TerminalPresenceService {
	return &TerminalPresenceService{in: bufio.NewReader(in), out: out}
}

func (s *TerminalPresenceService) Authenticate(ctx context.Context, opts AuthenticateOptions) (*AuthenticateResult, error) {
	if _, err := fmt.Fprintf(s.out, "%s [yes/%s]: ", opts.PromptMessage, strings.ToLower(opts.CancelLabel)); err != nil {
		return nil, err
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := s.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			if a.err == io.EOF {
				return &AuthenticateResult{Success: false, Error: ErrorCodeUserCancel}, nil
			}
			return nil, a.err
		}
		if strings.EqualFold(strings.TrimSpace(a.line), "yes") {
			return &AuthenticateResult{Success: true}, nil
		}
		return &AuthenticateResult{Success: false, Error: ErrorCodeUserCancel}, nil
	}
}
