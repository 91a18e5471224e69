package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/session"
)

// JSONResponse is one output line of the JSON-Lines protocol.
type JSONResponse struct {
	Turn        *domain.Turn `json:"turn,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ChatJSON tracks one turn per input line and answers each with a JSON line.
// A line is either a turn object or a JSON string (or plain text), which is
// recorded as a user message. Turns without a user get opts.UserID.
func ChatJSON(ctx context.Context, sessions *session.Manager, opts ChatOptions, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(NewInterruptibleReader(in, ctx.Done()))
	enc := json.NewEncoder(out)

	for {
		text, err := reader.ReadString('\n')
		if text = strings.TrimSpace(text); text != "" {
			if werr := enc.Encode(handleJSONLine(ctx, sessions, opts, text)); werr != nil {
				return werr
			}
		}
		if err != nil {
			return handleExecutionError(err)
		}
	}
}

func handleJSONLine(ctx context.Context, sessions *session.Manager, opts ChatOptions, text string) JSONResponse {
	var in session.TurnInput
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return JSONResponse{Error: "invalid turn: " + err.Error()}
		}
	} else {
		// Try to unquote if it's a JSON string
		var content string
		if err := json.Unmarshal([]byte(text), &content); err != nil {
			content = text
		}
		in = session.TurnInput{Role: domain.RoleUser, Content: content}
	}
	if in.UserID == "" {
		in.UserID = opts.UserID
	}

	turn, err := sessions.TrackTurn(ctx, in)
	if err != nil {
		return JSONResponse{Error: err.Error()}
	}
	return JSONResponse{Turn: &turn, Suggestions: sessions.ContextualSuggestions(in.UserID)}
}
