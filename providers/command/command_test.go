package command

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ktm-timetables/models"
)

// TestHelperProcess is not a real test. It stands in for the external
// extraction tool when re-executed by helperRecognizer.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	mode, path, pages := args[0], args[1], args[2]

	switch mode {
	case "ok":
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprint(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Printf(`[[["STESEN","%s"],["KL Sentral","%s"]],[]]`, pages, data)
	case "garbage":
		fmt.Print("not json")
	default:
		fmt.Fprint(os.Stderr, "boom")
		os.Exit(1)
	}
	os.Exit(0)
}

func helperRecognizer(mode string) *Recognizer {
	return &Recognizer{
		Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode},
		Env:     []string{"GO_WANT_HELPER_PROCESS=1"},
		Logger:  zap.NewNop(),
	}
}

func TestTables(t *testing.T) {
	grids, err := helperRecognizer("ok").Tables(context.Background(), []byte("06:00"), "")
	require.NoError(t, err)
	require.Len(t, grids, 2)
	assert.Equal(t, models.Grid{{"STESEN", "1-end"}, {"KL Sentral", "06:00"}}, grids[0])
	assert.Empty(t, grids[1])
}

func TestTablesErrors(t *testing.T) {
	_, err := helperRecognizer("fail").Tables(context.Background(), nil, "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = helperRecognizer("garbage").Tables(context.Background(), nil, "1")
	assert.ErrorContains(t, err, "decode")

	_, err = NewRecognizer("  ", zap.NewNop()).Tables(context.Background(), nil, "1")
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestNewRecognizer(t *testing.T) {
	r := NewRecognizer("python3 extract.py --lattice", zap.NewNop())
	assert.Equal(t, []string{"python3", "extract.py", "--lattice"}, r.Command)
	assert.Equal(t, "command", r.Name())
}
