// Command portalctl is the state-agency client of the county portal. It keeps
// a session between runs and drives task changes through the optimistic
// coordinator, so every write settles before the command exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/config"
	"github.com/civisight/portal/pkg/coordinator"
	"github.com/civisight/portal/pkg/dashboard"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/remote"
)

var Version = "dev"

type options struct {
	configFile  string
	sessionFile string
	baseURL     string
	asJSON      bool
	verbose     bool
}

// client is everything one command invocation needs.
type client struct {
	cfg         *config.Config
	sessionPath string
	session     *auth.MemorySession
	store       *remote.HTTPStore
	coord       *coordinator.Coordinator
	view        *dashboard.StateAgencyView
	logger      observability.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, displayError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Manage county tasks from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default $PORTAL_CONFIG_FILE or configs/config.yaml)")
	root.PersistentFlags().StringVar(&opts.sessionFile, "session", "", "session file (default under the user config dir)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "backend API base URL")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of tables")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log backend calls to stderr")

	root.AddCommand(loginCmd(opts))
	root.AddCommand(logoutCmd(opts))
	root.AddCommand(countiesCmd(opts))
	root.AddCommand(tasksCmd(opts))
	root.AddCommand(createCmd(opts))
	root.AddCommand(createGlobalCmd(opts))
	root.AddCommand(deleteCmd(opts))
	return root
}

func (o *options) newClient(stderr io.Writer) (*client, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.baseURL != "" {
		cfg.Client.Remote.BaseURL = o.baseURL
	}

	path := o.sessionFile
	if path == "" {
		path = cfg.Client.SessionFile
	}
	if path == "" {
		if path, err = auth.DefaultSessionFile(); err != nil {
			return nil, err
		}
	}
	session, err := auth.LoadSession(path)
	if err != nil {
		return nil, err
	}

	level := observability.LogLevelWarn
	if o.verbose {
		level = observability.LogLevelDebug
	}
	logger := observability.NewStandardLogger("portalctl").WithLevel(level).WithOutput(stderr)

	store := remote.NewHTTPStore(cfg.Client.Remote, session, logger, nil)
	coord := coordinator.New(store, session, cfg.Client.Coordinator, logger, nil)
	return &client{
		cfg:         cfg,
		sessionPath: path,
		session:     session,
		store:       store,
		coord:       coord,
		view:        dashboard.NewStateAgencyView(coord),
		logger:      logger,
	}, nil
}

// load fetches the county list and every county's tasks. Counties whose
// tasks failed to load are reported and kept empty.
func (c *client) load(ctx context.Context) error {
	if _, ok := c.session.Current(); !ok {
		return &coordinator.NotAuthenticatedError{}
	}
	counties, err := c.store.ListCounties(ctx)
	if err != nil {
		return err
	}
	if err := c.coord.Load(ctx, counties); err != nil {
		c.logger.Warn("Some counties failed to load", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// displayError prefers the coordinator's user-facing wording and falls back
// to the raw error for local failures such as a bad config file.
func displayError(err error) string {
	var ue coordinator.UserError
	if errors.As(err, &ue) {
		return coordinator.UserMessage(err)
	}
	if _, ok := err.(interface{ Unwrap() []error }); ok {
		return coordinator.UserMessage(err)
	}
	return "Error: " + err.Error()
}
