package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/typenote/internal/logging"
)

func Test_Make_Filters_Below_Level_When_Writing_To_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log, err := logging.New().Writer(&buf).Level("info").Make()
	require.NoError(t, err)

	log.Logger.Debug().Msg("hidden")
	log.Logger.Info().Str("object", "O1").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "object=O1")
	require.NoError(t, log.Close())
}

func Test_Make_Appends_JSON_Lines_When_File_Is_Set(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "typenote.log")

	for range 2 {
		log, err := logging.New().File(path).Level("debug").Make()
		require.NoError(t, err)

		log.Logger.Debug().Msg("line")
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "line", entry["message"])
}

func Test_Make_Returns_Error_When_Level_Is_Unknown(t *testing.T) {
	t.Parallel()

	_, err := logging.New().Level("loud").Make()
	require.Error(t, err)
}
