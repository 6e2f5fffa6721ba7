// Package intro holds what the intro writers share: the prompt and reply parsing.
package intro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/mikey/maccafe-matcher/internal/utils"
)

// SystemPrompt frames the model for every provider
const SystemPrompt = "You write warm, short introductions between two people a matching service paired up. Respond only with JSON."

const promptFormat = `Write a friendly one or two sentence introduction addressed to %s about their new match %s.
Mention what they have in common if anything. Do not invent facts and do not use the word "algorithm".

About %s: gender %s, age range %s, interests: %s.
About %s: gender %s, age range %s, interests: %s.
Shared interests: %s.

Respond with a JSON object of the form {"intro": "..."} and nothing else. Keep it under %d characters.`

// ErrEmptyIntro is returned when the model produced no usable text
var ErrEmptyIntro = errors.New("model returned an empty intro")

// Reply is the JSON document the models are asked for
type Reply struct {
	Intro string `json:"intro"`
}

// BuildPrompt renders the user prompt for an intro of match addressed to recipient
func BuildPrompt(recipient, match core.Profile, maxLength int) string {
	return fmt.Sprintf(promptFormat,
		displayName(recipient.Name, "the recipient"), displayName(match.Name, "their match"),
		displayName(recipient.Name, "the recipient"), recipient.SelfGender, recipient.SelfAgeRange, joinInterests(recipient.SelfInterests),
		displayName(match.Name, "their match"), match.SelfGender, match.SelfAgeRange, joinInterests(match.SelfInterests),
		joinInterests(sharedInterests(recipient.SelfInterests, match.SelfInterests)),
		maxLength)
}

// ParseReply extracts and cleans the intro from a raw model reply
func ParseReply(raw string, tp *utils.TextProcessor, maxLength int) (string, error) {
	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		extracted, ok := tp.ExtractJSON(raw)
		if !ok {
			return "", fmt.Errorf("failed to extract JSON from model reply: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &reply); err != nil {
			return "", fmt.Errorf("failed to parse model reply as JSON: %w", err)
		}
	}

	text := tp.ProcessText(reply.Intro, maxLength)
	if text == "" {
		return "", ErrEmptyIntro
	}
	return text, nil
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func joinInterests(interests []core.Interest) string {
	if len(interests) == 0 {
		return "none"
	}
	out := make([]string, len(interests))
	for i, interest := range interests {
		out[i] = string(interest)
	}
	return strings.Join(out, ", ")
}

func sharedInterests(a, b []core.Interest) []core.Interest {
	seen := make(map[core.Interest]bool, len(b))
	for _, interest := range b {
		seen[interest] = true
	}
	var out []core.Interest
	for _, interest := range a {
		if seen[interest] {
			out = append(out, interest)
			delete(seen, interest)
		}
	}
	return out
}
