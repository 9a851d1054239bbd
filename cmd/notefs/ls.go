package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/notefs/internal/notefs"
)

var (
	accent      = lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FAFD7"}
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	nameStyle   = lipgloss.NewStyle().PaddingLeft(2)
	emptyStyle  = lipgloss.NewStyle().PaddingLeft(2).Faint(true).Italic(true)
)

func (a *app) lsCommand() *cobra.Command {
	var archived, trash, tags bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "Sync and list notes or tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archived && trash {
				return fmt.Errorf("--archived and --trash are exclusive")
			}
			replica, _, err := a.freshReplica(cmd.Context())
			if err != nil {
				return err
			}
			title, names := listing(replica, archived, trash, tags)
			fmt.Fprint(cmd.OutOrStdout(), renderListing(title, names))
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived notes")
	cmd.Flags().BoolVar(&trash, "trash", false, "list trashed notes")
	cmd.Flags().BoolVar(&tags, "tags", false, "list tags instead of notes")
	return cmd
}

func listing(replica *notefs.Replica, archived, trash, tags bool) (string, []string) {
	switch {
	case tags:
		return "Tags", replica.ListTags()
	case archived:
		return "Archived", replica.ListNotes(notefs.NoteFilter{Archived: true})
	case trash:
		return "Trash", replica.ListNotes(notefs.NoteFilter{Trashed: true})
	}
	return "Notes", replica.ListNotes(notefs.NoteFilter{})
}

func renderListing(title string, names []string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(names))))
	b.WriteString("\n")
	if len(names) == 0 {
		b.WriteString(emptyStyle.Render("nothing here"))
		b.WriteString("\n")
	}
	for _, name := range names {
		b.WriteString(nameStyle.Render(name))
		b.WriteString("\n")
	}
	return b.String()
}
