package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/typenote/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Returns_Defaults_When_No_Config_Files_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".typenote", "typenote.db"), cfg.DBPathAbs)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.LogFileAbs)
	assert.Equal(t, config.Sources{}, cfg.Sources)
}

func Test_Load_Applies_Layers_In_Order_When_All_Sources_Are_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "typenote", "config.json"), `{
		// global settings
		"db_path": "global.db",
		"log_level": "info",
		"log_file": "typenote.log",
	}`)
	writeFile(t, filepath.Join(dir, config.FileName), `{"db_path": "project.db"}`)

	env := map[string]string{"XDG_CONFIG_HOME": xdg}

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: env})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "project.db"), cfg.DBPathAbs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "typenote.log"), cfg.LogFileAbs)
	assert.Equal(t, filepath.Join(xdg, "typenote", "config.json"), cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, config.FileName), cfg.Sources.Project)

	// Contract: CLI overrides beat every file.
	cfg, err = config.Load(config.LoadInput{
		WorkDirOverride:  dir,
		Env:              env,
		DBPathOverride:   "/abs/cli.db",
		LogLevelOverride: "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/abs/cli.db", cfg.DBPathAbs)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_File_When_Config_Path_Is_Set(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"db_path": "project.db", "log_level": "error"}`)
	writeFile(t, filepath.Join(dir, "custom.json"), `{"db_path": "custom.db"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "custom.json", Env: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.DBPathAbs)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "custom.json"), cfg.Sources.Project)
}

func Test_Load_Falls_Back_To_Home_When_XDG_Is_Unset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".config", "typenote", "config.json"), `{"log_level": "trace"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{"HOME": home}})
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.LogLevel)
}

func Test_Load_Returns_Error_When_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		input   config.LoadInput
		wantErr error
	}{
		{name: "missing explicit file", input: config.LoadInput{ConfigPath: "nope.json"}, wantErr: config.ErrConfigFileNotFound},
		{name: "broken JSONC", content: `{"db_path": `, wantErr: config.ErrConfigInvalid},
		{name: "wrong type", content: `{"db_path": 3}`, wantErr: config.ErrConfigInvalid},
		{name: "explicit empty db path", content: `{"db_path": ""}`, wantErr: config.ErrDBPathEmpty},
		{name: "bad log level", content: `{"log_level": "loud"}`, wantErr: config.ErrLogLevelInvalid},
		{name: "bad log level override", input: config.LoadInput{LogLevelOverride: "loud"}, wantErr: config.ErrLogLevelInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.content != "" {
				writeFile(t, filepath.Join(dir, config.FileName), tt.content)
			}

			input := tt.input
			input.WorkDirOverride = dir
			input.Env = map[string]string{}

			_, err := config.Load(input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func Test_Format_Renders_Only_Serialized_Fields(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DBPathAbs = "/should/not/appear"

	out, err := config.Format(cfg)
	require.NoError(t, err)

	assert.JSONEq(t, `{"db_path": ".typenote/typenote.db", "log_level": "warn"}`, out)
}
