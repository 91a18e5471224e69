package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tripchat/internal/presentation/tui"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/session"
)

// ChatOptions configures an interactive conversation.
type ChatOptions struct {
	UserID      string
	Destination string
	Quiet       bool
}

// chatHelp lists the slash commands of the chat loop.
const chatHelp = `Commands:
  /assistant <text>  record an assistant reply
  /intent <INTENT>   tag the next message with an intent
  /history           show the recent conversation
  /suggest           show suggested next messages
  /session           show the current session
  /end               end the session and archive it
  /quit              leave without ending the session`

// Chat reads messages from in and tracks them as turns of the user's
// session until EOF, /quit, /end or cancellation of ctx.
func Chat(ctx context.Context, sessions *session.Manager, opts ChatOptions, in io.Reader, out io.Writer, render tui.Renderer) error {
	sess, err := sessions.StartSession(ctx, opts.UserID, opts.Destination)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if !opts.Quiet {
		printSystemMessage(out, "Session '%s' active for %s. Type /help for commands.", sess.ID, opts.UserID)
	}

	show := func(md string) {
		if md == "" {
			return
		}
		text, err := render(md)
		if err != nil {
			text = md
		}
		fmt.Fprint(out, text)
	}

	var intent domain.Intent
	scanner := bufio.NewScanner(NewInterruptibleReader(in, ctx.Done()))
	for {
		if !opts.Quiet {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return handleExecutionError(err)
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/quit", "/exit":
			return nil
		case "/end":
			if err := sessions.EndSession(ctx, opts.UserID); err != nil {
				return err
			}
			printSystemMessage(out, "Session ended.")
			return nil
		case "/history":
			turns, err := sessions.ConversationHistory(ctx, opts.UserID, 0)
			if err != nil {
				return err
			}
			show(tui.HistoryMarkdown(turns))
		case "/suggest":
			show(tui.SuggestionsMarkdown(sessions.ContextualSuggestions(opts.UserID)))
		case "/session":
			s, err := sessions.CurrentSession(opts.UserID)
			if err != nil {
				return err
			}
			show(tui.SessionMarkdown(s))
		case "/intent":
			intent = domain.Intent(strings.ToUpper(strings.TrimSpace(arg)))
			if !intent.Valid() {
				printSystemMessage(out, "Unknown intent %q.", arg)
				intent = ""
			}
		case "/assistant":
			if err := track(ctx, sessions, session.TurnInput{UserID: opts.UserID, Role: domain.RoleAssistant, Content: arg}, out); err != nil {
				return err
			}
		default:
			if strings.HasPrefix(cmd, "/") {
				printSystemMessage(out, "Unknown command %s.", cmd)
				continue
			}
			turn := session.TurnInput{UserID: opts.UserID, Role: domain.RoleUser, Content: line, Intent: intent}
			intent = ""
			if err := track(ctx, sessions, turn, out); err != nil {
				return err
			}
			if !opts.Quiet {
				show(tui.SuggestionsMarkdown(sessions.ContextualSuggestions(opts.UserID)))
			}
		}
	}
}

// track records a turn, reporting rejected input without stopping the loop.
func track(ctx context.Context, sessions *session.Manager, in session.TurnInput, out io.Writer) error {
	_, err := sessions.TrackTurn(ctx, in)
	if errors.Is(err, domain.ErrInvalidTurn) {
		printSystemMessage(out, "Message rejected: %v", err)
		return nil
	}
	return err
}
