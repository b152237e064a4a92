package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/trainerbot/core/config"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	ran, closed bool
	err         error
}

func (a *fakeApp) Run(context.Context) error { a.ran = true; return a.err }
func (a *fakeApp) Close() error              { a.closed = true; return nil }

func TestRunLoadsEnvFileAndConfigPath(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("TRAINERBOT_RUNNER_TEST=dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TRAINERBOT_RUNNER_TEST") })
	t.Setenv("TRAINER_CONFIG", filepath.Join(dir, "bot.yaml"))

	app := &fakeApp{}
	var gotPath, gotEnv string
	err := Run(Options{
		ConfigEnvVar: "TRAINER_CONFIG",
		EnvFiles:     []string{envFile, filepath.Join(dir, "missing.env")},
		LoadConfig: func(path string) (ConfigCarrier, error) {
			gotPath = path
			gotEnv = os.Getenv("TRAINERBOT_RUNNER_TEST")
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (App, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotPath != filepath.Join(dir, "bot.yaml") {
		t.Fatalf("config path = %q", gotPath)
	}
	if gotEnv != "dotenv" {
		t.Fatalf(".env not loaded before config: %q", gotEnv)
	}
	if !app.ran || !app.closed {
		t.Fatalf("app ran=%v closed=%v", app.ran, app.closed)
	}
}

func TestRunReturnsAppError(t *testing.T) {
	fatal := errors.New("token rejected")
	app := &fakeApp{err: fatal}
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{},
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (App, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
	})
	if !errors.Is(err, fatal) || !app.closed {
		t.Fatalf("err = %v closed = %v", err, app.closed)
	}
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	err := Run(Options{
		EnvFiles:   []string{},
		LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil },
		Bootstrap:  func(context.Context, ConfigCarrier) (App, error) { return nil, nil },
	})
	if err == nil {
		t.Fatal("expected missing config path error")
	}
}
