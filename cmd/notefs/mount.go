package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentworkforce/notefs/internal/fusefs"
	"github.com/agentworkforce/notefs/internal/logging"
	"github.com/agentworkforce/notefs/internal/notify"
	"github.com/agentworkforce/notefs/internal/session"
	"github.com/agentworkforce/notefs/internal/snapi"
)

func (a *app) mountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <dir>",
		Short: "Mount the account at dir and keep it in sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mount(cmd.Context(), args[0])
		},
	}
}

func (a *app) mount(parent context.Context, dir string) error {
	client, store, err := a.authenticated()
	if err != nil {
		return err
	}
	defer session.Close(store)
	replica, err := a.replica(client)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	loop := newSyncLoop(replica, a.cfg.Sync, logging.Component("sync"))
	view := fusefs.NewView(replica, loop.Trigger, logging.Component("fusefs"))
	server, err := fusefs.Mount(dir, view, fusefs.MountOptions{
		Debug:      a.cfg.Mount.Debug,
		AllowOther: a.cfg.Mount.AllowOther,
	})
	if err != nil {
		return fmt.Errorf("mount %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("mounted")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		server.Wait()
		cancel()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := server.Unmount(); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("unmount")
		}
		return nil
	})
	g.Go(func() error {
		return loop.Run(ctx)
	})
	if url := a.cfg.Notify.URL; url != "" {
		listener := &notify.Listener{
			URL:     url,
			Token:   client.Token,
			Trigger: loop.Trigger,
			Logger:  logging.Component("notify"),
		}
		g.Go(func() error {
			return listener.Run(ctx)
		})
	}
	if path, ok := session.FilePath(a.cfg.Session.DSN); ok {
		g.Go(func() error {
			return session.WatchFile(ctx, path, logging.Component("session"), func() {
				reloadToken(store, client)
			})
		})
	}
	err = g.Wait()
	log.Info().Str("dir", dir).Msg("unmounted")
	return err
}

// reloadToken picks up a session saved by another login while mounted.
func reloadToken(store session.Store, client *snapi.Client) {
	sess, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("reload session failed")
		return
	}
	if !sess.Valid() {
		log.Warn().Msg("session cleared while mounted, keeping the current token")
		return
	}
	if sess.Token != client.Token() {
		client.SetToken(sess.Token)
		log.Info().Str("email", sess.Email).Msg("session token reloaded")
	}
}
