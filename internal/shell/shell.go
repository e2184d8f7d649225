// Package shell interprets operator command lines against the client.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"iroha/internal/client"
	"iroha/internal/hierarchy"
	"iroha/internal/render"
	"iroha/internal/utils"
)

// DefaultPrompt is written before each command line.
const DefaultPrompt = "iroha> "

// Shell handles one command line at a time. A Shell built without a client
// is disabled and refuses every command.
type Shell struct {
	client   *client.Client
	input    *utils.LineReader
	renderer *render.Renderer
	prompt   string
}

// New creates a Shell. Pass a nil client when no credentials are available.
func New(c *client.Client, input *utils.LineReader, renderer *render.Renderer) *Shell {
	return &Shell{
		client:   c,
		input:    input,
		renderer: renderer,
		prompt:   DefaultPrompt,
	}
}

// Enabled reports whether the shell has a client to run commands with.
func (s *Shell) Enabled() bool {
	return s.client != nil
}

// Run reads and handles lines until quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	if !s.Enabled() {
		return utils.ErrCredentialsNotFound()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := s.readCommand(ctx)
		if errors.Is(err, utils.ErrNoInput) {
			return nil
		}
		if err != nil {
			return err
		}
		if !s.HandleLine(ctx, line) {
			return nil
		}
	}
}

type lineResult struct {
	line string
	err  error
}

// readCommand prompts for the next command line and gives up when ctx is done.
// An abandoned read stays blocked on the input until the process exits; the
// loop never reads again after that.
func (s *Shell) readCommand(ctx context.Context) (string, error) {
	done := make(chan lineResult, 1)
	go func() {
		line, err := s.input.Prompt(s.prompt)
		done <- lineResult{line: line, err: err}
	}()

	select {
	case r := <-done:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HandleLine runs one command and reports whether the loop should continue.
// It returns false only for quit or when the shell is disabled.
func (s *Shell) HandleLine(ctx context.Context, line string) bool {
	if !s.Enabled() {
		s.renderer.Error(utils.ErrCredentialsNotFound())
		return false
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	command := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch command {
	case "quit", "q":
		return false
	case "help", "h":
		s.renderer.Help()
	case "view":
		s.withID(arg, func(id hierarchy.ID) error { return s.view(ctx, id) })
	case "create":
		s.withID(arg, func(id hierarchy.ID) error { return s.create(ctx, id) })
	case "update":
		s.withID(arg, func(id hierarchy.ID) error { return s.update(ctx, id) })
	case "close":
		if arg == "" {
			s.renderer.Message("please supply an ID")
			return true
		}
		s.withID(arg, func(id hierarchy.ID) error { return s.close(ctx, id) })
	case "detail":
		if arg == "" {
			s.renderer.Message("please supply an ID")
			return true
		}
		s.withID(arg, func(id hierarchy.ID) error { return s.detail(ctx, id) })
	default:
		s.renderer.Message("Unknown command %q. Type 'help' to see the commands.", fields[0])
	}
	return true
}

// withID parses arg (empty means none) and runs fn, reporting any error.
func (s *Shell) withID(arg string, fn func(hierarchy.ID) error) {
	var id hierarchy.ID
	if arg != "" {
		parsed, err := hierarchy.Parse(arg)
		if err != nil {
			s.renderer.Error(utils.ErrInvalidID(arg))
			return
		}
		id = parsed
	}
	if err := fn(id); err != nil {
		if errors.Is(err, utils.ErrNoInput) {
			s.renderer.Message("Cancelled.")
			return
		}
		if errors.Is(err, utils.ErrEmptyResponse) {
			s.renderer.Message("No data.")
			return
		}
		utils.Debugf("Command failed: %v", err)
		s.renderer.Error(err)
	}
}

func (s *Shell) view(ctx context.Context, id hierarchy.ID) error {
	if !id.IsZero() && id.Level() == hierarchy.LevelCard {
		return s.detail(ctx, id)
	}
	rows, err := s.client.View(ctx, id)
	if err != nil {
		return err
	}
	s.renderer.Rows(childLevel(id), rows)
	return nil
}

func (s *Shell) detail(ctx context.Context, id hierarchy.ID) error {
	if id.Level() != hierarchy.LevelCard {
		return fmt.Errorf("detail needs a card ID, got %s ID %s", id.Level(), id)
	}
	row, err := s.client.CardDetail(ctx, id)
	if err != nil {
		return err
	}
	s.renderer.Detail(row)
	return nil
}

func (s *Shell) create(ctx context.Context, parent hierarchy.ID) error {
	if !parent.IsZero() && parent.Level() == hierarchy.LevelCard {
		return fmt.Errorf("cannot create anything inside a card")
	}
	level := childLevel(parent)
	name, err := s.input.PromptRequired(fmt.Sprintf("%s name: ", capitalize(level.String())))
	if err != nil {
		return err
	}
	rows, err := s.client.Create(ctx, parent, name)
	if err != nil {
		return err
	}
	s.renderer.Rows(level, rows)
	return nil
}

func (s *Shell) update(ctx context.Context, id hierarchy.ID) error {
	if id.IsZero() {
		s.showCachedBoards()
		answer, err := s.input.PromptRequired("Board ID: ")
		if err != nil {
			return err
		}
		parsed, err := hierarchy.Parse(answer)
		if err != nil {
			return utils.ErrInvalidID(answer)
		}
		if parsed.Level() != hierarchy.LevelBoard {
			return fmt.Errorf("%s is a %s ID; use 'update %s' instead", answer, parsed.Level(), answer)
		}
		id = parsed
	}

	name, err := s.input.PromptRequired(fmt.Sprintf("New %s name: ", id.Level()))
	if err != nil {
		return err
	}

	var rows []client.Row
	switch id.Level() {
	case hierarchy.LevelBoard:
		rows, err = s.client.UpdateBoard(ctx, id, name)
	case hierarchy.LevelList:
		rows, err = s.client.UpdateList(ctx, id, name)
	case hierarchy.LevelCard:
		desc, promptErr := s.input.Prompt("New description: ")
		if promptErr != nil {
			return promptErr
		}
		rows, err = s.client.UpdateCard(ctx, id, name, desc)
	}
	if err != nil {
		return err
	}
	s.renderer.Rows(id.Level(), rows)
	return nil
}

// showCachedBoards lists the boards from the last view so an ID can be picked
// without another request. Nothing is shown before the first view.
func (s *Shell) showCachedBoards() {
	rows, err := s.client.Cached(hierarchy.LevelBoard)
	if err != nil || len(rows) == 0 {
		return
	}
	s.renderer.Rows(hierarchy.LevelBoard, rows)
}

func (s *Shell) close(ctx context.Context, id hierarchy.ID) error {
	item, err := s.client.Store().Lookup(id.Level(), id.String())
	if err != nil {
		return err
	}
	if !s.input.PromptYesNo(fmt.Sprintf("Close %s %s (%s)?", id.Level(), id, item.Name)) {
		s.renderer.Message("Cancelled.")
		return nil
	}
	rows, err := s.client.CloseItem(ctx, id)
	if err != nil {
		return err
	}
	s.renderer.Message("Closed %s %s.", id.Level(), id)
	s.renderer.Rows(id.Level(), rows)
	return nil
}

// childLevel is the level listed by viewing id: boards for none, lists for a board, cards for a list.
func childLevel(id hierarchy.ID) hierarchy.Level {
	if id.IsZero() {
		return hierarchy.LevelBoard
	}
	return id.Level() + 1
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
