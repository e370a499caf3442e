package mtproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"relaybot/internal/gateway"
)

// Login runs the interactive phone/code/password flow and stores the
// resulting session at cfg.SessionPath.
func Login(ctx context.Context, cfg Config, phone string, in io.Reader, out io.Writer) (gateway.Account, error) {
	if err := cfg.validate(); err != nil {
		return gateway.Account{}, err
	}
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
	})
	prompt := &terminalAuth{phone: phone, in: bufio.NewReader(in), out: out}

	var acc gateway.Account
	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(prompt, auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("login: %w", wrapRPC(err))
		}
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("self: %w", wrapRPC(err))
		}
		acc = accountOf(self)
		return nil
	})
	return acc, err
}

var errSignUp = errors.New("mtproto: this phone has no Telegram account; sign up in an official app first")

// terminalAuth answers the auth flow from a line-based reader. The 2FA
// password is read without echo when stdin is a terminal.
type terminalAuth struct {
	phone string
	in    *bufio.Reader
	out   io.Writer
}

var _ auth.UserAuthenticator = (*terminalAuth)(nil)

func (a *terminalAuth) ask(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *terminalAuth) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	return a.ask("Phone number (international format): ")
}

func (a *terminalAuth) Code(ctx context.Context, sent *tg.AuthSentCode) (string, error) {
	return a.ask("Login code: ")
}

func (a *terminalAuth) Password(ctx context.Context) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.ask("2FA password: ")
	}
	fmt.Fprint(a.out, "2FA password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (a *terminalAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a *terminalAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errSignUp
}
