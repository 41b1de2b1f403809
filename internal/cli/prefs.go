package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPrefsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change local preferences",
	}

	cmd.AddCommand(newLanguageCommand(a), newPopupCommand(a))

	return cmd
}

func newLanguageCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "language [en|bn]",
		Short:     "Show or set the interface language",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"en", "bn"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if err := st.SetLanguage(args[0]); err != nil {
					return err
				}
			}

			lang, err := st.Language()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, lang)
			return nil
		},
	}
}

func newPopupCommand(a *app) *cobra.Command {
	var mark bool

	cmd := &cobra.Command{
		Use:   "popup",
		Short: "Show when the Telegram notice was last displayed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			if mark {
				if err := st.MarkPopupShown(); err != nil {
					return err
				}
			}

			shown, err := st.PopupShownAt()
			if err != nil {
				return err
			}
			due, err := st.PopupDue()
			if err != nil {
				return err
			}

			last := "never"
			if !shown.IsZero() {
				last = shown.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(a.out, "last shown: %s\n", last)
			fmt.Fprintf(a.out, "due: %t\n", due)
			return nil
		},
	}

	cmd.Flags().BoolVar(&mark, "mark", false, "Record the notice as shown now")

	return cmd
}
