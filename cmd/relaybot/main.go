package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relaybot/internal/app"
	"relaybot/internal/config"
	"relaybot/internal/gateway/mtproto"
	"relaybot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	flag.StringVar(&envPath, "env", ".env", "dotenv file loaded before the environment overrides")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [run|init-session]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "", "run":
		err = run(ctx, cfgPath)
	case "init-session":
		err = initSession(ctx, cfgPath)
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
	}
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// initSession logs the user account in interactively and writes the session file.
func initSession(ctx context.Context, cfgPath string) error {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "init-session"))
	mc := mtproto.Config{
		APIID:       cfg.MTProto.APIID,
		APIHash:     cfg.MTProto.APIHash,
		SessionPath: cfg.MTProto.SessionPath,
	}
	log.Info("starting login", logx.String("session", mc.SessionPath))

	acc, err := mtproto.Login(ctx, mc, cfg.MTProto.Phone, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	log.Info("session saved",
		logx.Int64("user_id", acc.ID),
		logx.String("username", acc.Username),
		logx.String("session", mc.SessionPath),
	)
	return nil
}
