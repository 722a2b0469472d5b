package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PhindChat/internal/session"

	"github.com/pterm/pterm"
)

// handleCommand runs a slash command; the bool reports whether the REPL should exit
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if err := cb.saveSession(ctx); err != nil {
			cb.logger.Error("failed to save current session", "error", err)
		}
		cb.mu.Lock()
		backendName := cb.session.Backend
		cb.session = session.New(backendName)
		id := cb.session.ID
		cb.mu.Unlock()
		cb.logger.Info("created new session", "session_id", id, "backend", backendName)
		fmt.Fprintln(cb.out, "Started new session:", id)
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <backend> (%s)", strings.Join(cb.registry.Names(), "|"))
		}
		p, err := cb.registry.Get(parts[1])
		if err != nil {
			return false, err
		}
		cb.mu.Lock()
		cb.session.Backend = p.Name()
		cb.mu.Unlock()
		fmt.Fprintf(cb.out, "Switched to %s backend\n", p.Name())
		return false, nil

	case "/sessions":
		limit := 20
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 {
				return false, fmt.Errorf("usage: /sessions [limit]")
			}
			limit = n
		}
		return false, cb.PrintSessions(ctx, limit)

	case "/list-ollama-models":
		if cb.ollama == nil {
			return false, fmt.Errorf("ollama backend is not configured")
		}
		models, err := cb.ollama.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		fmt.Fprintln(cb.out, "\nAvailable Ollama models:")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == cb.ollama.Model() {
				current = " (current)"
			}
			fmt.Fprintf(cb.out, "%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		fmt.Fprintln(cb.out)
		return false, nil

	case "/set-ollama-model":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /set-ollama-model <model:version>")
		}
		if cb.ollama == nil {
			return false, fmt.Errorf("ollama backend is not configured")
		}
		cb.ollama.SetModel(parts[1])
		fmt.Fprintf(cb.out, "Ollama model set to: %s\n", parts[1])
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /quit, /exit              - Exit the chatbot")
		fmt.Fprintln(cb.out, "  /new-session              - Start a new chat session")
		fmt.Fprintf(cb.out, "  /switch <backend>         - Switch backend (%s)\n", strings.Join(cb.registry.Names(), "|"))
		fmt.Fprintln(cb.out, "  /sessions [limit]         - List recent sessions")
		fmt.Fprintln(cb.out, "  /list-ollama-models       - List available Ollama models")
		fmt.Fprintln(cb.out, "  /set-ollama-model <model> - Set Ollama model (e.g., llama3:latest)")
		fmt.Fprintln(cb.out, "  /help                     - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s, type /help for commands", parts[0])
	}
}

// PrintSessions renders the most recent stored sessions as a table, marking the current one
func (cb *ChatBot) PrintSessions(ctx context.Context, limit int) error {
	sessions, err := cb.store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cb.out, "No sessions found")
		return nil
	}

	current := cb.Session().ID
	rows := pterm.TableData{{"ID", "Started", "Backend", "Messages"}}
	for _, s := range sessions {
		id := s.ID
		if id == current {
			id += " *"
		}
		rows = append(rows, []string{
			id,
			s.StartTime.Format(time.DateTime),
			s.Backend,
			strconv.Itoa(s.MessageCount),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return fmt.Errorf("failed to render sessions: %w", err)
	}
	fmt.Fprintln(cb.out, table)
	return nil
}

// Run starts the interactive REPL and saves the session on exit
func (cb *ChatBot) Run(ctx context.Context) error {
	sess := cb.Session()
	fmt.Fprintln(cb.out, "=== PhindChat ===")
	fmt.Fprintf(cb.out, "Session: %s\n", sess.ID)
	fmt.Fprintf(cb.out, "Backend: %s\n", sess.Backend)
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)

	scanner := bufio.NewScanner(cb.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		fmt.Fprint(cb.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if _, err := cb.Send(ctx, input); err != nil {
			fmt.Fprintf(cb.out, "Error: %v\n\n", err)
			cb.logger.Error("failed to send message", "error", err)
		}
	}

	// the REPL context may already be cancelled here
	if err := cb.saveSession(context.WithoutCancel(ctx)); err != nil {
		cb.logger.Error("failed to save session on exit", "error", err)
		return err
	}

	fmt.Fprintln(cb.out, "Goodbye!")
	return nil
}
