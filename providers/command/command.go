// Package command recognizes tables by running an external extraction tool.
//
// The tool is invoked as `<command...> <pdf path> <pages>` and must print a
// JSON array of tables on stdout, each table being an array of rows of cell
// strings.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ktm-timetables/models"
)

// ErrNoCommand is returned when the recognizer has no command configured.
var ErrNoCommand = errors.New("no table command configured")

// Recognizer delegates table detection to an external process.
type Recognizer struct {
	Command []string
	Env     []string
	Logger  *zap.Logger
}

// NewRecognizer splits commandLine on whitespace into program and arguments.
func NewRecognizer(commandLine string, logger *zap.Logger) *Recognizer {
	return &Recognizer{Command: strings.Fields(commandLine), Logger: logger}
}

func (r *Recognizer) Name() string {
	return "command"
}

// Tables writes the document to a scratch file, runs the command on it and
// decodes its output.
func (r *Recognizer) Tables(ctx context.Context, document []byte, pages string) ([]models.Grid, error) {
	if len(r.Command) == 0 {
		return nil, ErrNoCommand
	}

	dir, err := os.MkdirTemp("", "timetable-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, document, 0o600); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pages) == "" {
		pages = "1-end"
	}

	args := append(append([]string{}, r.Command[1:]...), path, pages)
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Env = append(os.Environ(), r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug("Running table command", zap.Strings("command", r.Command), zap.String("pages", pages))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", r.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	var raw [][][]string
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", r.Command[0], err)
	}
	grids := make([]models.Grid, 0, len(raw))
	for _, t := range raw {
		grids = append(grids, models.Grid(t))
	}
	return grids, nil
}
