package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the per-user directory name under $HOME.
	DefaultBaseDir = ".t140cast"
	// DefaultConfigFile is the config file name inside DefaultBaseDir.
	DefaultConfigFile = "config.yaml"
)

// Paths locates the per-user files.
type Paths struct {
	HomeDir string
}

// NewPaths resolves the current user's home directory.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.t140cast.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.t140cast/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// DataDir returns ~/.t140cast/data.
func (p *Paths) DataDir() string {
	return filepath.Join(p.BaseDir(), "data")
}
