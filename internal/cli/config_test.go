package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/typenote/internal/cli"
)

// Tests for print-config command.

func Test_Print_Config_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "db_path="+c.DBPath())
	cli.AssertContains(t, stdout, "log_level=warn")
	cli.AssertContains(t, stdout, "(defaults only)")
	cli.AssertNotContains(t, stdout, "log_file=")
}

func Test_Print_Config_From_Project_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := c.WriteFile(".typenote.json", `{
		// notes live next to the project
		"db_path": "notes/notes.db",
		"log_level": "info",
	}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "db_path="+filepath.Join(c.Dir, "notes", "notes.db"))
	cli.AssertContains(t, stdout, "log_level=info")
	cli.AssertContains(t, stdout, "project_config="+path)
	cli.AssertNotContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_Explicit_Config_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		args []string
	}{
		{name: "short", args: []string{"-c", "custom.json", "print-config"}},
		{name: "long with equals", args: []string{"--config=custom.json", "print-config"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			c.WriteFile(".typenote.json", `{"db_path": "project.db"}`)
			c.WriteFile("custom.json", `{"db_path": "custom.db"}`)

			stdout := c.MustRun(tt.args...)

			cli.AssertContains(t, stdout, "db_path="+filepath.Join(c.Dir, "custom.db"))
			cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, "custom.json"))
		})
	}
}

func Test_Config_Precedence_Full_Chain_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdg := filepath.Join(c.Dir, "xdg")
	c.Env["XDG_CONFIG_HOME"] = xdg

	global := c.WriteFile(filepath.Join("xdg", "typenote", "config.json"),
		`{"db_path": "global.db", "log_level": "error", "log_file": "global.log"}`)
	project := c.WriteFile(".typenote.json", `{"db_path": "project.db", "log_level": "info"}`)

	stdout := c.MustRun("--db", "flag.db", "print-config")

	// Flag beats project beats global; unset keys fall through.
	cli.AssertContains(t, stdout, "db_path="+filepath.Join(c.Dir, "flag.db"))
	cli.AssertContains(t, stdout, "log_level=info")
	cli.AssertContains(t, stdout, "log_file="+filepath.Join(c.Dir, "global.log"))
	cli.AssertContains(t, stdout, "global_config="+global)
	cli.AssertContains(t, stdout, "project_config="+project)
}

func Test_Config_Global_Config_From_Home_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.Env["HOME"] = c.Dir
	global := c.WriteFile(filepath.Join(".config", "typenote", "config.json"), `{"db_path": "home.db"}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "db_path="+filepath.Join(c.Dir, "home.db"))
	cli.AssertContains(t, stdout, "global_config="+global)
}

func Test_Config_Global_Config_Missing_Is_Not_Error_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.Env["XDG_CONFIG_HOME"] = filepath.Join(c.Dir, "nothing-here")

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_JSON_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".typenote.json", `{"db_path": "notes.db"}`)

	stdout := c.MustRun("print-config", "--json")

	cli.AssertContains(t, stdout, `"db_path": "notes.db"`)
	cli.AssertContains(t, stdout, `"log_level": "warn"`)
	cli.AssertNotContains(t, stdout, "effective_cwd")
}

func Test_Config_Errors_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		files   map[string]string
		args    []string
		wantErr string
	}{
		{
			name:    "explicit config not found",
			args:    []string{"-c", "missing.json", "print-config"},
			wantErr: "config file not found",
		},
		{
			name:    "invalid json",
			files:   map[string]string{".typenote.json": `{"db_path": `},
			args:    []string{"print-config"},
			wantErr: "invalid config",
		},
		{
			name:    "empty db path in file",
			files:   map[string]string{".typenote.json": `{"db_path": "  "}`},
			args:    []string{"print-config"},
			wantErr: "db_path",
		},
		{
			name:    "config flag requires argument",
			args:    []string{"print-config", "-c"},
			wantErr: "unknown shorthand flag",
		},
		{
			name:    "invalid log level in file",
			files:   map[string]string{".typenote.json": `{"log_level": "chatty"}`},
			args:    []string{"print-config"},
			wantErr: "chatty",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			for name, content := range tt.files {
				c.WriteFile(name, content)
			}

			_, stderr, exitCode := c.Run(tt.args...)

			if got, want := exitCode, 1; got != want {
				t.Errorf("exitCode=%d, want=%d", got, want)
			}

			cli.AssertContains(t, stderr, "error:")
			cli.AssertContains(t, stderr, tt.wantErr)
		})
	}
}

func Test_C_Flag_Changes_Work_Dir_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	sub := filepath.Join(c.Dir, "sub")
	c.WriteFile(filepath.Join("sub", ".typenote.json"), `{"db_path": "sub.db"}`)

	// The later -C wins over the helper's --cwd.
	stdout := c.MustRun("-C", sub, "print-config")

	cli.AssertContains(t, stdout, "effective_cwd="+sub)
	cli.AssertContains(t, stdout, "db_path="+filepath.Join(sub, "sub.db"))
}
