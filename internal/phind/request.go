package phind

import (
	"bytes"
	"encoding/json"
	"fmt"

	"PhindChat/internal/session"
)

// Options are the feature flags sent with every question.
type Options struct {
	AllowMultiSearch   bool   `json:"allowMultiSearch"`
	AnswerModel        string `json:"answerModel"`
	EnableNewFollowups bool   `json:"enableNewFollowups"`
	SearchMode         string `json:"searchMode"`
	ThoughtsMode       string `json:"thoughtsMode"`
}

// DefaultOptions mirrors what the web client sends for the 70B model.
func DefaultOptions() Options {
	return Options{
		AllowMultiSearch:   true,
		AnswerModel:        "Phind-70B",
		EnableNewFollowups: true,
		SearchMode:         "auto",
		ThoughtsMode:       "auto",
	}
}

// TurnMetadata describes how a past turn was produced.
type TurnMetadata struct {
	Mode      string   `json:"mode"`
	ModelName string   `json:"model_name"`
	Images    []string `json:"images"`
}

// HistoryTurn is one question/answer pair in the provider's history schema.
type HistoryTurn struct {
	Question           string       `json:"question"`
	Answer             *string      `json:"answer,omitempty"`
	Cancelled          bool         `json:"cancelled"`
	Context            string       `json:"context"`
	Metadata           TurnMetadata `json:"metadata"`
	CustomLinks        []string     `json:"customLinks"`
	MultiSearchQueries []string     `json:"multiSearchQueries"`
	PreviousAnswers    []string     `json:"previousAnswers"`
}

func newHistoryTurn(question string) HistoryTurn {
	return HistoryTurn{
		Question: question,
		Context:  "",
		Metadata: TurnMetadata{
			Mode:      "Normal",
			ModelName: "Phind Instant",
			Images:    []string{},
		},
		CustomLinks:        []string{},
		MultiSearchQueries: []string{},
		PreviousAnswers:    []string{},
	}
}

// Payload is the body POSTed to the inference endpoint.
type Payload struct {
	Options   Options       `json:"options"`
	Question  string        `json:"question"`
	History   []HistoryTurn `json:"question_and_answer_history,omitempty"`
	Challenge *float64      `json:"challenge,omitempty"`
}

// BuildPayload takes the last message as the question and folds the rest into history.
func BuildPayload(messages []session.Message, opts Options) (*Payload, error) {
	if len(messages) == 0 {
		return nil, ErrNoQuestion
	}
	last := messages[len(messages)-1]
	if last.Role != session.RoleUser {
		return nil, fmt.Errorf("%w: last role is %q", ErrNoQuestion, last.Role)
	}

	payload := &Payload{
		Options:  opts,
		Question: last.Content,
	}
	if history := BuildHistory(messages[:len(messages)-1]); len(history) > 0 {
		payload.History = history
	}
	return payload, nil
}

// BuildHistory opens a turn on each user message and closes the latest turn with the
// following assistant message. An assistant message before any user message is dropped.
func BuildHistory(messages []session.Message) []HistoryTurn {
	var history []HistoryTurn
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			history = append(history, newHistoryTurn(msg.Content))
		case session.RoleAssistant:
			if len(history) == 0 {
				continue
			}
			answer := msg.Content
			history[len(history)-1].Answer = &answer
		}
	}
	return history
}

// Seal computes the challenge over the payload without a challenge and attaches it.
func (p *Payload) Seal(seeds Seeds) error {
	unsealed := *p
	unsealed.Challenge = nil

	generic, err := toGeneric(unsealed)
	if err != nil {
		return err
	}
	challenge, err := Solve(generic, seeds)
	if err != nil {
		return err
	}
	p.Challenge = &challenge
	return nil
}

// Body returns the JSON request body, leaving HTML characters unescaped as a browser would.
func (p *Payload) Body() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
