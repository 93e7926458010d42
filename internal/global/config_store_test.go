package global

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigStore_Load_MissingFileIsReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompter")
	store := NewConfigStore(dir)

	cfg, found, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Fatal("expected no config file")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("Load must not create the config dir, stat err=%v", err)
	}
	if cfg.Runtime != "container" || cfg.History.Limit != DefaultHistoryLimit {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestConfigStore_SaveDefaultsWritesTables(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompter")
	store := NewConfigStore(dir)

	cfg, _, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cfg.Runtime != "container" {
		t.Fatalf("expected default runtime container, got %q", cfg.Runtime)
	}
	if cfg.Container.DefaultPort != DefaultContainerPort || cfg.Interpreter.DefaultPort != DefaultInterpreterPort {
		t.Fatalf("unexpected default ports: %+v", cfg)
	}
	if cfg.Container.Image != DefaultContainerImage {
		t.Fatalf("unexpected image %q", cfg.Container.Image)
	}

	b, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("read config.toml failed: %v", err)
	}
	text := string(b)
	for _, table := range []string{"[container]", "[interpreter]", "[history]"} {
		if !strings.Contains(text, table) {
			t.Fatalf("expected %s table in toml, got: %s", table, text)
		}
	}
	if !strings.Contains(text, "internal_port = 37465") {
		t.Fatalf("expected container.internal_port in toml, got: %s", text)
	}
	if !strings.Contains(text, "binary = 'python3'") && !strings.Contains(text, `binary = "python3"`) {
		t.Fatalf("expected interpreter.binary in toml, got: %s", text)
	}
}

func TestConfigStore_Load_ReadsExistingAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	raw := `runtime = "python"

[container]
image = "example/prompter:dev"
internal_port = 0

[interpreter]
binary = "python3.12"
require_dependencies = true
default_port = 7000

[history]
disabled = true
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, found, err := NewConfigStore(dir).Load()
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if cfg.Runtime != "interpreter" {
		t.Fatalf("expected python alias normalized to interpreter, got %q", cfg.Runtime)
	}
	if cfg.Container.Image != "example/prompter:dev" {
		t.Fatalf("unexpected image %q", cfg.Container.Image)
	}
	if cfg.Container.InternalPort != DefaultContainerPort {
		t.Fatalf("expected invalid internal port replaced by default, got %d", cfg.Container.InternalPort)
	}
	if cfg.Interpreter.Binary != "python3.12" || !cfg.Interpreter.RequireDependencies || cfg.Interpreter.DefaultPort != 7000 {
		t.Fatalf("unexpected interpreter settings: %+v", cfg.Interpreter)
	}
	if !cfg.History.Disabled || cfg.History.Limit != DefaultHistoryLimit {
		t.Fatalf("unexpected history settings: %+v", cfg.History)
	}
}

func TestConfigStore_Load_RejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("runtime = [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, found, err := NewConfigStore(dir).Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !found {
		t.Fatal("a malformed file still counts as found so it is never overwritten")
	}
}

func TestConfigStore_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewConfigStore(dir)
	cfg := NormalizeSettings(Settings{})
	cfg.Container.BuildContext = "/src/prompter"
	cfg.History.Limit = 5
	if err := store.Save(cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away, stat err=%v", err)
	}
	got, _, err := store.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.Container.BuildContext != "/src/prompter" || got.History.Limit != 5 {
		t.Fatalf("unexpected reloaded settings: %+v", got)
	}
}
