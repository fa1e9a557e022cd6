package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt renders the user-side prompt: recent history, the new
// utterance, and a hint describing any pending action.
func BuildPrompt(req Request) string {
	var b strings.Builder
	if len(req.History) > 0 {
		turns := make([]string, 0, len(req.History))
		for _, e := range req.History {
			turns = append(turns, fmt.Sprintf("%s: %s", e.Role, e.Text))
		}
		fmt.Fprintf(&b, "Conversation so far: %s\nUser now: %s", strings.Join(turns, " | "), req.Utterance)
	} else {
		b.WriteString(req.Utterance)
	}

	if req.Pending != nil {
		fmt.Fprintf(&b, "\nPreviously, the user wanted '%s' with partial details %s. "+
			"Use the new message to complete any missing details.",
			req.Pending.Action, formatParams(req.Pending.Parameters))
	}
	return b.String()
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(raw)
}

// SystemPrompt is the instruction given to chat-style oracles.
func SystemPrompt(actionNames []string) string {
	return `You are Sam, a conversational music assistant.
Decompose the user's request into an ordered list of music actions with their parameters.

Rules:
- Choose actions only from the available actions list, in the order the user asked for them.
- Extract parameters such as song_name, artist, playlist_name, movie_name, mood, seconds or volume_percent.
- "Liked Songs" is not a playlist; use play_liked_songs for it.
- For small talk return no actions and just a reply.
- Use the conversation so far to fill parameters the user refers to implicitly.
- Keep the reply short; it is read aloud.
- Respond with ONLY a JSON object, no markdown:
{"intent": "...", "emotion": "...", "actions": [{"action": "...", "parameters": {"...": "..."}}], "reply": "..."}

Available actions: ` + strings.Join(actionNames, ", ")
}

// ParseResolution decodes oracle text into a Resolution. Markdown code fences
// and text around the JSON object are ignored.
func ParseResolution(text string) (*Resolution, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidOutput)
	}

	var res Resolution
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	return &res, nil
}
