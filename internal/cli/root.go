// Package cli implements the dailychat command line client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/api"
	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/transport"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app holds what every command needs once flags are parsed.
type app struct {
	cfg     *config.Client
	log     *logger.Logger
	session *auth.Session
	client  *api.Client
	in      *bufio.Reader
	out     io.Writer
}

// readLine reads one trimmed input line. io.EOF is returned at end of input.
func (a *app) readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(a.out, prompt)
	}
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// NewRootCommand builds the dailychat command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var (
		baseURL  string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "dailychat",
		Short: "Chat with the daily report assistant",
		Long: `dailychat talks to the daily report agent from the terminal.

Record daily reports, supplement missed days, ask about team progress,
generate weekly summaries and bulk import past entries.

Quick Start:
  dailychat login -u alice        # Sign in
  dailychat chat --mode report    # Write today's report
  dailychat import team.csv       # Preview and import a CSV file`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, baseURL, logLevel)
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "url", "", "Agent base URL (default $DAILYCHAT_URL)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default $DAILYCHAT_LOG_LEVEL)")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newSessionsCommand(a),
		newChatCommand(a),
		newImportCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, baseURL, logLevel string) error {
	a.cfg = config.LoadClient()
	if baseURL != "" {
		a.cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if logLevel != "" {
		a.cfg.LogLevel = logLevel
	}

	log, err := logger.NewWithOutput(a.cfg.LogLevel, "stderr")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.log = log

	if a.cfg.TracingEnabled {
		tp, err := tracing.InitTracer(cmd.Context(), "dailychat", a.cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			cobra.OnFinalize(func() { tracing.Shutdown(context.Background(), tp) })
		}
	}

	a.session, err = auth.Init(auth.NewFileStore(a.cfg.CredentialsPath), log)
	if err != nil {
		return err
	}
	a.client = api.New(transport.New(a.cfg.BaseURL, a.session, a.cfg.Timeout, log), log)
	a.in = bufio.NewReader(cmd.InOrStdin())
	a.out = cmd.OutOrStdout()
	return nil
}

// requireLogin fails commands that need a credential when signed out.
func (a *app) requireLogin() error {
	if !a.session.LoggedIn() {
		return fmt.Errorf("未登录，请先运行 dailychat login")
	}
	return nil
}

// Execute runs the root command and exits on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", api.UserMessage(err))
		os.Exit(1)
	}
}
