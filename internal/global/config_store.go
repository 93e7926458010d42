package global

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configTOMLFileName = "config.toml"

	DefaultContainerImage = "oyrendev/prompter:latest"
	DefaultContainerName  = "oyren-prompter-instance"
	DefaultContainerPort  = 37465
	DefaultMountPath      = "/project"
	DefaultStopTimeout    = 10

	DefaultInterpreterBinary = "python3"
	DefaultInterpreterPort   = 5000
	DefaultScript            = "app.py"
	DefaultRequirements      = "requirements.txt"

	DefaultHistoryLimit = 20
)

type ContainerSettings struct {
	Binary        string `json:"binary" toml:"binary"`
	Image         string `json:"image" toml:"image"`
	ContainerName string `json:"container_name" toml:"container_name"`
	InternalPort  int    `json:"internal_port" toml:"internal_port"`
	MountPath     string `json:"mount_path" toml:"mount_path"`
	BuildContext  string `json:"build_context" toml:"build_context"`
	DefaultPort   int    `json:"default_port" toml:"default_port"`
	StopTimeout   int    `json:"stop_timeout_seconds" toml:"stop_timeout_seconds"`
}

type InterpreterSettings struct {
	Binary              string `json:"binary" toml:"binary"`
	AppDir              string `json:"app_dir" toml:"app_dir"`
	Script              string `json:"script" toml:"script"`
	Requirements        string `json:"requirements" toml:"requirements"`
	RequireDependencies bool   `json:"require_dependencies" toml:"require_dependencies"`
	DefaultPort         int    `json:"default_port" toml:"default_port"`
}

type HistorySettings struct {
	Disabled bool `json:"disabled" toml:"disabled"`
	Limit    int  `json:"limit" toml:"limit"`
}

type Settings struct {
	Runtime     string              `json:"runtime" toml:"runtime"`
	LogLevel    string              `json:"log_level" toml:"log_level"`
	Container   ContainerSettings   `json:"container" toml:"container"`
	Interpreter InterpreterSettings `json:"interpreter" toml:"interpreter"`
	History     HistorySettings     `json:"history" toml:"history"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (s *ConfigStore) Path() string {
	return filepath.Join(s.dir, configTOMLFileName)
}

func (s *ConfigStore) Dir() string {
	return s.dir
}

// Load reads the settings file without touching the disk otherwise. A
// missing file yields the defaults and found=false.
func (s *ConfigStore) Load() (cfg Settings, found bool, err error) {
	b, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return NormalizeSettings(Settings{}), false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Settings{}, true, err
	}
	return NormalizeSettings(cfg), true, nil
}

func (s *ConfigStore) Save(cfg Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(s.Path(), NormalizeSettings(cfg))
}

// Encode renders settings the way they are stored on disk.
func Encode(cfg Settings) ([]byte, error) {
	return toml.Marshal(cfg)
}

func NormalizeSettings(cfg Settings) Settings {
	switch strings.ToLower(strings.TrimSpace(cfg.Runtime)) {
	case "interpreter", "python", "python3":
		cfg.Runtime = "interpreter"
	default:
		cfg.Runtime = "container"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Container = normalizeContainer(cfg.Container)
	cfg.Interpreter = normalizeInterpreter(cfg.Interpreter)
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = DefaultHistoryLimit
	}
	return cfg
}

func normalizeContainer(c ContainerSettings) ContainerSettings {
	c.Binary = strings.TrimSpace(c.Binary)
	if c.Binary == "" {
		c.Binary = "docker"
	}
	c.Image = strings.TrimSpace(c.Image)
	if c.Image == "" {
		c.Image = DefaultContainerImage
	}
	c.ContainerName = strings.TrimSpace(c.ContainerName)
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	if c.InternalPort <= 0 || c.InternalPort > 65535 {
		c.InternalPort = DefaultContainerPort
	}
	c.MountPath = strings.TrimSpace(c.MountPath)
	if c.MountPath == "" {
		c.MountPath = DefaultMountPath
	}
	c.BuildContext = strings.TrimSpace(c.BuildContext)
	if c.DefaultPort <= 0 || c.DefaultPort > 65535 {
		c.DefaultPort = DefaultContainerPort
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

func normalizeInterpreter(i InterpreterSettings) InterpreterSettings {
	i.Binary = strings.TrimSpace(i.Binary)
	if i.Binary == "" {
		i.Binary = DefaultInterpreterBinary
	}
	i.AppDir = strings.TrimSpace(i.AppDir)
	i.Script = strings.TrimSpace(i.Script)
	if i.Script == "" {
		i.Script = DefaultScript
	}
	i.Requirements = strings.TrimSpace(i.Requirements)
	if i.Requirements == "" {
		i.Requirements = DefaultRequirements
	}
	if i.DefaultPort <= 0 || i.DefaultPort > 65535 {
		i.DefaultPort = DefaultInterpreterPort
	}
	return i
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
