package main

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/notefs/internal/config"
	"github.com/agentworkforce/notefs/internal/logging"
	"github.com/agentworkforce/notefs/internal/notefs"
	"github.com/agentworkforce/notefs/internal/session"
	"github.com/agentworkforce/notefs/internal/snapi"
)

var errNotLoggedIn = errors.New("not logged in, run `notefs login` first")

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbosity  int

	cfg       *config.Config
	logCloser io.Closer
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "notefs",
		Short: "Standard Notes as a filesystem",
		Long: `notefs keeps a local replica of a Standard Notes account and presents it
as a directory tree of plain text files, syncing edits back to the server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "config file")
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.syncCommand(),
		a.lsCommand(),
		a.mountCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	verbosity := cfg.Log.Verbosity
	if a.verbosity > verbosity {
		verbosity = a.verbosity
	}
	a.cfg = cfg
	a.logCloser = logging.Setup(verbosity, cfg.Log.File)
	log.Debug().Str("command", cmd.Name()).Str("config", a.configPath).Msg("command started")
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

func (a *app) openStore() (session.Store, error) {
	return session.Open(a.cfg.Session.DSN)
}

func (a *app) client(server, token string) *snapi.Client {
	if strings.TrimSpace(server) == "" {
		server = a.cfg.Server.URL
	}
	return snapi.NewClient(server, token, snapi.ClientOptions{
		HTTPClient: &http.Client{Timeout: a.cfg.Sync.Timeout},
		Logger:     logging.Printf{Logger: logging.Component("snapi")},
	})
}

// authenticated returns a client for the saved session. The session's server
// wins over the configured one since the token was issued there.
func (a *app) authenticated() (*snapi.Client, session.Store, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	sess, err := store.Load()
	if err != nil {
		_ = session.Close(store)
		return nil, nil, err
	}
	if !sess.Valid() {
		_ = session.Close(store)
		return nil, nil, errNotLoggedIn
	}
	return a.client(sess.Server, sess.Token), store, nil
}

func (a *app) replica(remote notefs.Remote) (*notefs.Replica, error) {
	return notefs.NewReplica(remote, notefs.Options{
		Extension: a.cfg.Mount.Extension,
		MaxRounds: a.cfg.Sync.MaxRounds,
		Logger:    logging.Component("replica"),
	})
}
