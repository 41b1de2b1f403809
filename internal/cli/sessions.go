package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anbuinfosec/anbu-ai/internal/store"
)

func newSessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List saved chat sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			sessions, err := st.ListSessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.out, "No sessions found.")
				return nil
			}

			current, err := st.CurrentSessionID()
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
			fmt.Fprintln(a.out)
			for _, s := range sessions {
				marker := "  "
				if s.ID == current {
					marker = countStyle.Render("* ")
				}
				fmt.Fprintf(a.out, "%s%s %s\n", marker, titleStyle.Render(s.Title), idStyle.Render(s.ID))
				fmt.Fprintf(a.out, "  %s  %s  %s\n",
					countStyle.Render(fmt.Sprintf("%d messages", len(s.Messages))),
					s.Model,
					dateStyle.Render(formatMillis(s.UpdatedAt)))
			}
			return nil
		},
	}

	cmd.AddCommand(
		newSessionShowCommand(a),
		newSessionDeleteCommand(a),
		newSessionUseCommand(a),
		newSessionSearchCommand(a),
		newExportCommand(a),
	)

	return cmd
}

func newSessionShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			s, ok, err := st.GetSession(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", store.ErrSessionNotFound, args[0])
			}

			fmt.Fprintln(a.out, headerStyle.Render(s.Title))
			fmt.Fprintf(a.out, "%s  %s\n\n", idStyle.Render(s.ID), dateStyle.Render(formatMillis(s.CreatedAt)))
			for _, m := range s.Messages {
				label := userStyle.Render("You:")
				if m.Role == store.RoleAssistant {
					label = assistantStyle.Render(s.Model + ":")
				}
				fmt.Fprintf(a.out, "%s %s\n", label, m.Content)
			}
			return nil
		},
	}
}

func newSessionDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", okStyle.Render("Deleted"), idStyle.Render(args[0]))
			return nil
		},
	}
}

func newSessionUseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a session current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			s, ok, err := st.GetSession(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", store.ErrSessionNotFound, args[0])
			}
			if err := st.SetCurrentSession(s.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Now chatting in %s %s\n", titleStyle.Render(s.Title), idStyle.Render(s.ID))
			return nil
		},
	}
}

func newSessionSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search session titles and messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			hits, err := st.Search(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(a.out, "No matching sessions.")
				return nil
			}

			for _, h := range hits {
				fmt.Fprintf(a.out, "%s %s %s\n",
					titleStyle.Render(h.Title),
					idStyle.Render(h.SessionID),
					dateStyle.Render(fmt.Sprintf("%.2f", h.Score)))
			}
			return nil
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sessions and images",
		Long: `Export every saved session and image.

Formats: json, yaml, markdown. Output goes to stdout unless --output is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if err := st.Export(w, format); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(a.errOut, "%s %s\n", okStyle.Render("Exported to"), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", store.FormatJSON, "Export format: json, yaml, markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func newImagesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List generated images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			images, err := st.ListImages()
			if err != nil {
				return err
			}
			if len(images) == 0 {
				fmt.Fprintln(a.out, "No images found.")
				return nil
			}

			fmt.Fprintln(a.out, headerStyle.Render(fmt.Sprintf("Images (%d)", len(images))))
			fmt.Fprintln(a.out)
			for _, img := range images {
				fmt.Fprintf(a.out, "%s %s\n", titleStyle.Render(img.Prompt), idStyle.Render(img.ID))
				fmt.Fprintf(a.out, "  %s  %s %s  %s\n", img.URL, img.Style, img.Size, dateStyle.Render(formatMillis(img.CreatedAt)))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an image record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.DeleteImage(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", okStyle.Render("Deleted"), idStyle.Render(args[0]))
			return nil
		},
	})

	return cmd
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all sessions and images",
		Long:  "Delete every saved session and image. The language preference is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.ClearAll(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, okStyle.Render("All chat history and images cleared."))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
