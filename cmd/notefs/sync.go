package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/notefs/internal/notefs"
	"github.com/agentworkforce/notefs/internal/session"
)

func (a *app) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync against a fresh replica",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			replica, report, err := a.freshReplica(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rounds: %d uploaded, %d retrieved, %d conflicts; %d items\n",
				report.Rounds, report.Uploaded, report.Retrieved, report.Conflicts, replica.Len())
			return nil
		},
	}
}

// freshReplica downloads the whole account into a new replica.
func (a *app) freshReplica(ctx context.Context) (*notefs.Replica, notefs.SyncReport, error) {
	client, store, err := a.authenticated()
	if err != nil {
		return nil, notefs.SyncReport{}, err
	}
	_ = session.Close(store)
	replica, err := a.replica(client)
	if err != nil {
		return nil, notefs.SyncReport{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Sync.Timeout)
	defer cancel()
	report, err := replica.SyncOnce(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("sync: %w", err)
	}
	return replica, report, nil
}
