package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// Terminal запрашивает данные для входа в терминале.
// Реализует ports.CredentialProvider.
type Terminal struct {
	phone   string
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
}

// NewTerminal создает Terminal поверх произвольных потоков.
// fd используется для чтения пароля без эха; -1 отключает эту возможность.
func NewTerminal(phone string, in io.Reader, out io.Writer, fd int) *Terminal {
	return &Terminal{
		phone:   phone,
		in:      bufio.NewReader(in),
		out:     out,
		stdinfd: fd,
	}
}

// OpenTTY создает Terminal на управляющем терминале процесса.
// Stdout занят протоколом MCP, поэтому диалог идет через /dev/tty.
func OpenTTY(phone string) (*Terminal, io.Closer, error) {
	tty, err := openTTY()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open terminal: %w", err)
	}
	return NewTerminal(phone, tty, tty, int(tty.Fd())), tty, nil
}

// Stdio создает Terminal на стандартных потоках; подходит для команды входа.
func Stdio(phone string) *Terminal {
	return NewTerminal(phone, os.Stdin, os.Stderr, int(os.Stdin.Fd()))
}

// Phone возвращает заданный номер или запрашивает его.
func (t *Terminal) Phone(_ context.Context) (string, error) {
	if t.phone != "" {
		return t.phone, nil
	}
	fmt.Fprint(t.out, "Enter phone number: ")
	phone, err := t.readLine()
	if err != nil {
		return "", xerrors.Errorf("failed to read phone: %w", err)
	}
	t.phone = phone
	return phone, nil
}

// Code запрашивает код подтверждения.
func (t *Terminal) Code(_ context.Context) (string, error) {
	fmt.Fprint(t.out, "Enter code: ")
	code, err := t.readLine()
	if err != nil {
		return "", xerrors.Errorf("failed to read code: %w", err)
	}
	return code, nil
}

// Password запрашивает пароль 2FA.
func (t *Terminal) Password(_ context.Context) (string, error) {
	fmt.Fprint(t.out, "Enter 2FA password: ")
	if t.stdinfd >= 0 && term.IsTerminal(t.stdinfd) {
		bytePwd, err := term.ReadPassword(t.stdinfd)
		if err != nil {
			return "", xerrors.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(t.out) // Новая строка после ввода
		return string(bytePwd), nil
	}

	pwd, err := t.readLine()
	if err != nil {
		return "", xerrors.Errorf("failed to read password: %w", err)
	}
	return pwd, nil
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
