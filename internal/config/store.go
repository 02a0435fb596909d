package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brogergvhs/mangarack/internal/fsx"
)

const DefaultLabel = "Default"

var ErrNoConfig = errors.New("no config selected")

// Store manages named config profiles:
//
//	<root>/configs/<label>.yaml
//	<root>/current_config        label of the active profile
type Store struct {
	Root string
}

// DefaultStore uses the platform config directory.
func DefaultStore() Store {
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return Store{Root: filepath.Join(appdata, "mangarack")}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return Store{Root: filepath.Join(xdg, "mangarack")}
	}
	home, _ := os.UserHomeDir()
	return Store{Root: filepath.Join(home, ".config", "mangarack")}
}

func (s Store) ConfigsDir() string { return filepath.Join(s.Root, "configs") }

func (s Store) currentFile() string { return filepath.Join(s.Root, "current_config") }

// PathOf is where the profile named label lives, whether or not it exists.
func (s Store) PathOf(label string) string {
	return filepath.Join(s.ConfigsDir(), label+".yaml")
}

func (s Store) ensureDirs() error {
	return os.MkdirAll(s.ConfigsDir(), 0o755)
}

func (s Store) Current() (string, error) {
	b, err := os.ReadFile(s.currentFile())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoConfig
	}
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(string(b))
	if label == "" {
		return "", ErrNoConfig
	}
	return label, nil
}

func (s Store) ActivePath() (string, error) {
	label, err := s.Current()
	if err != nil {
		return "", err
	}
	return s.PathOf(label), nil
}

type Profile struct {
	Label  string
	Path   string
	Active bool
}

func (s Store) List() ([]Profile, error) {
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.ConfigsDir())
	if err != nil {
		return nil, err
	}

	active, _ := s.Current()
	var out []Profile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		label := strings.TrimSuffix(name, ".yaml")
		out = append(out, Profile{Label: label, Path: s.PathOf(label), Active: label == active})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s Store) Switch(label string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if ok, _ := fsx.Exists(s.PathOf(label)); !ok {
		return fmt.Errorf("config %q does not exist", label)
	}
	return s.setCurrent(label)
}

func (s Store) setCurrent(label string) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(s.currentFile(), []byte(label))
}

// Add imports the YAML file at src as profile label. The file must parse.
func (s Store) Add(label, src string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if ok, _ := fsx.Exists(s.PathOf(label)); ok {
		return fmt.Errorf("config %q already exists", label)
	}

	if _, err := loadYAML(src); err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	if err := s.ensureDirs(); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(s.PathOf(label), raw)
}

// Create writes a profile with default settings and returns its path.
func (s Store) Create(label string) (string, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}

	path := s.PathOf(label)
	if ok, _ := fsx.Exists(path); ok {
		return "", fmt.Errorf("config %q already exists", label)
	}
	if err := s.ensureDirs(); err != nil {
		return "", err
	}
	return path, SaveYAML(DefaultConfig(), path)
}

func (s Store) Rename(oldLabel, newLabel string) error {
	if err := checkLabel(newLabel); err != nil {
		return err
	}

	oldPath, newPath := s.PathOf(oldLabel), s.PathOf(newLabel)
	if ok, _ := fsx.Exists(oldPath); !ok {
		return fmt.Errorf("config %q does not exist", oldLabel)
	}
	if ok, _ := fsx.Exists(newPath); ok {
		return fmt.Errorf("config %q already exists", newLabel)
	}

	if err := fsx.Rename(oldPath, newPath); err != nil {
		return err
	}

	if active, _ := s.Current(); active == oldLabel {
		return s.setCurrent(newLabel)
	}
	return nil
}

// Remove deletes a profile. Removing the active profile switches back to
// the default one; the default profile itself cannot be removed.
func (s Store) Remove(label string) (switched bool, err error) {
	if err := checkLabel(label); err != nil {
		return false, err
	}
	if label == DefaultLabel {
		return false, fmt.Errorf("cannot remove the %s config", DefaultLabel)
	}

	path := s.PathOf(label)
	if ok, _ := fsx.Exists(path); !ok {
		return false, fmt.Errorf("config %q does not exist", label)
	}

	if active, _ := s.Current(); active == label {
		if err := s.Switch(DefaultLabel); err != nil {
			return false, fmt.Errorf("failed switching to %s: %w", DefaultLabel, err)
		}
		switched = true
	}

	return switched, os.Remove(path)
}

// Init creates the default profile if needed and makes it active. The bool
// reports whether the file was created.
func (s Store) Init() (string, bool, error) {
	path := s.PathOf(DefaultLabel)

	created := false
	if ok, _ := fsx.Exists(path); !ok {
		if _, err := s.Create(DefaultLabel); err != nil {
			return "", false, err
		}
		created = true
	}

	return path, created, s.setCurrent(DefaultLabel)
}

// Reset overwrites profile label with the default settings.
func (s Store) Reset(label string) error {
	path := s.PathOf(label)
	if ok, _ := fsx.Exists(path); !ok {
		return fmt.Errorf("config %q does not exist", label)
	}
	return SaveYAML(DefaultConfig(), path)
}

func checkLabel(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("label cannot be empty")
	}
	if strings.ContainsAny(label, `/\`) || label == "." || label == ".." {
		return fmt.Errorf("invalid label %q", label)
	}
	return nil
}
