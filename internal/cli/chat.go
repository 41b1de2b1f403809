package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anbuinfosec/anbu-ai/internal/client"
	"github.com/anbuinfosec/anbu-ai/internal/store"
)

// telegramURL is the channel advertised by the periodic notice.
const telegramURL = "https://t.me/anbuinfosec"

func newChatCommand(a *app) *cobra.Command {
	var (
		model        string
		systemPrompt string
		sessionID    string
		newSession   bool
	)

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message in the current chat session",
		Long: `Send a message to the gateway and record both turns in the local store.

The message goes to the current session unless --session or --new is given.
A session is created when none exists.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return errors.New("message is required")
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			session, err := resolveSession(st, sessionID, newSession, model)
			if err != nil {
				return err
			}
			if model == "" {
				model = session.Model
			}

			if _, err := st.AddMessage(session.ID, store.RoleUser, message); err != nil {
				return err
			}

			reply, err := a.gateway().WithSession(session.ID).Chat(ctx, client.ChatRequest{
				Message:      message,
				Model:        model,
				SystemPrompt: systemPrompt,
			})
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}

			if _, err := st.AddMessage(session.ID, store.RoleAssistant, reply.Text); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s %s\n", assistantStyle.Render(reply.Model+":"), reply.Text)

			return a.maybeShowNotice(st)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&model, "model", "m", "", "Model: gpt-4o or gpt-3.5 (default: the session's model)")
	flags.StringVar(&systemPrompt, "system", "", "System prompt for this message")
	flags.StringVar(&sessionID, "session", "", "Session to use instead of the current one")
	flags.BoolVar(&newSession, "new", false, "Start a new session")

	return cmd
}

// resolveSession picks the session a chat message goes to and makes it
// current.
func resolveSession(st *store.Store, id string, fresh bool, model string) (store.ChatSession, error) {
	if fresh {
		return st.CreateSession(model)
	}

	if id == "" {
		current, err := st.CurrentSessionID()
		if err != nil {
			return store.ChatSession{}, err
		}
		if current == "" {
			return st.CreateSession(model)
		}
		id = current
	}

	session, ok, err := st.GetSession(id)
	if err != nil {
		return store.ChatSession{}, err
	}
	if !ok {
		return store.ChatSession{}, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	if err := st.SetCurrentSession(session.ID); err != nil {
		return store.ChatSession{}, err
	}
	return session, nil
}

// maybeShowNotice prints the Telegram notice when it is due.
func (a *app) maybeShowNotice(st *store.Store) error {
	due, err := st.PopupDue()
	if err != nil || !due {
		return err
	}

	text := "Join Anbu Soft on Telegram for updates and new features:\n" + telegramURL
	if lang, _ := st.Language(); lang == store.LanguageBengali {
		text = "আপডেট ও নতুন ফিচারের জন্য টেলিগ্রামে Anbu Soft-এ যোগ দিন:\n" + telegramURL
	}
	fmt.Fprintln(a.errOut, noticeBox.Render(text))

	return st.MarkPopupShown()
}

func newImageCommand(a *app) *cobra.Command {
	var style, size string

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image",
		Long: `Generate an image through the gateway and record it in the local store.

Styles: default, ghibli, cyberpunk, anime, portrait, 3d.
Sizes: 1:1, 3:2, 2:3.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt is required")
			}

			reply, err := a.gateway().Image(ctx, client.ImageRequest{Prompt: prompt, Style: style, Size: size})
			if err != nil {
				return fmt.Errorf("image generation failed: %w", err)
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			img, err := st.SaveImage(prompt, style, size, reply.ImageURL)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s %s\n", titleStyle.Render("Image:"), reply.ImageURL)
			fmt.Fprintf(a.out, "%s\n", idStyle.Render(img.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", "default", "Image style")
	cmd.Flags().StringVar(&size, "size", "1:1", "Aspect ratio")

	return cmd
}

func newResetCommand(a *app) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the gateway's history for a session",
		Long: `Clear the server-side conversation history of the current session.
The local transcript is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := a.sessionOrCurrent(ctx, sessionID)
			if err != nil {
				return err
			}

			reply, err := a.gateway().WithSession(id).Reset(ctx)
			if err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}

			if reply.HadHistory {
				fmt.Fprintf(a.out, "%s %s\n", okStyle.Render(reply.Message), idStyle.Render(reply.SessionID))
			} else {
				fmt.Fprintf(a.out, "%s %s\n", dateStyle.Render("No history to reset"), idStyle.Render(reply.SessionID))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session to reset instead of the current one")

	return cmd
}

// sessionOrCurrent returns id, or the current session id when id is empty.
func (a *app) sessionOrCurrent(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return "", err
	}
	current, err := st.CurrentSessionID()
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", errors.New("no current session; pass --session")
	}
	return current, nil
}
