package phind

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
)

// Substitution is text emitted when a tag opens or closes.
type Substitution struct {
	Open  string
	Close string
}

// TagConfig drives how the interpreter reads the stream.
type TagConfig struct {
	DataPrefix    string
	DoneMarker    string
	ErrorMarker   string
	IgnoredChunks []string
	IgnoredTags   []string
	Substitutions map[string]Substitution
}

// DefaultTagConfig matches the markers the Phind inference endpoint emits today.
func DefaultTagConfig() TagConfig {
	return TagConfig{
		DataPrefix:  "data: ",
		DoneMarker:  "<PHIND_DONE/>",
		ErrorMarker: "<PHIND_BACKEND_ERROR>",
		IgnoredChunks: []string{
			"<PHIND_WEBRESULTS>",
			"<PHIND_FOLLOWUP>",
			"<PHIND_METADATA>",
			"<PHIND_INDICATOR>",
			"<PHIND_SPAN_BEGIN>",
			"<PHIND_SPAN_END>",
		},
		IgnoredTags:   []string{"image", "thinking", "icon", "citation"},
		Substitutions: map[string]Substitution{},
	}
}

// Interpreter turns stream lines into a growing answer. It is single use and not safe
// for concurrent calls.
type Interpreter struct {
	cfg    TagConfig
	update func(text string)
	tags   []string
	buf    strings.Builder
}

// NewInterpreter creates an interpreter delivering the full answer to update after
// every recognized line. A nil update is allowed.
func NewInterpreter(cfg TagConfig, update func(text string)) *Interpreter {
	if update == nil {
		update = func(string) {}
	}
	return &Interpreter{cfg: cfg, update: update}
}

// Run consumes r until the done marker, end_turn, EOF or an error. Lines may be split
// across reads; a final line without a newline is still handled.
func (in *Interpreter) Run(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := br.ReadString('\n')
		if line != "" {
			done, err := in.HandleLine(line)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
}

// HandleLine processes one line and reports whether the stream is finished.
func (in *Interpreter) HandleLine(line string) (bool, error) {
	line = strings.TrimRight(line, "\r\n")

	data, ok := strings.CutPrefix(line, in.cfg.DataPrefix)
	if !ok {
		return false, nil
	}
	if strings.HasPrefix(data, in.cfg.DoneMarker) {
		return true, nil
	}
	if strings.HasPrefix(data, in.cfg.ErrorMarker) {
		return false, &StreamError{Partial: in.buf.String(), Err: ErrBackend}
	}
	if lo.SomeBy(in.cfg.IgnoredChunks, func(prefix string) bool {
		return strings.HasPrefix(data, prefix)
	}) {
		return false, nil
	}

	if data != "" {
		event, ok := ParseEvent(data)
		if !ok {
			return false, nil
		}
		switch ev := event.(type) {
		case EndTurn:
			return true, nil
		case NewTag:
			in.openTag(ev.Tag)
		case EndTag:
			in.closeTag(ev.Tag)
		case AddTextToken:
			in.addText(ev.Text)
		}
	}

	in.update(in.buf.String())
	return false, nil
}

func (in *Interpreter) openTag(tag string) {
	if tag == "" {
		return
	}
	in.tags = append(in.tags, tag)
	if sub, ok := in.cfg.Substitutions[tag]; ok && sub.Open != "" {
		in.buf.WriteString(sub.Open)
	}
}

func (in *Interpreter) closeTag(tag string) {
	if tag == "" {
		return
	}
	if sub, ok := in.cfg.Substitutions[tag]; ok && sub.Close != "" {
		in.buf.WriteString(sub.Close)
	} else {
		in.buf.WriteString("\n")
	}

	if idx := lo.LastIndexOf(in.tags, tag); idx >= 0 {
		in.tags = append(in.tags[:idx], in.tags[idx+1:]...)
	}
}

func (in *Interpreter) addText(text string) {
	if text == "" || lo.Some(in.tags, in.cfg.IgnoredTags) {
		return
	}
	in.buf.WriteString(text)
}

// Text returns the answer accumulated so far.
func (in *Interpreter) Text() string {
	return in.buf.String()
}

// Tags returns a copy of the currently open tags, oldest first.
func (in *Interpreter) Tags() []string {
	return append([]string(nil), in.tags...)
}
