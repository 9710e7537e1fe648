// Package config loads and validates the shop's configuration.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the directory holding the local document store.
const DataDirEnv = "SHOP_DATA_DIR"

// DataDir returns $SHOP_DATA_DIR, then $XDG_DATA_HOME/shop, then
// ~/.local/share/shop.
func DataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return ExpandPath(dir)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(ExpandPath(xdg), "shop")
	}
	return ExpandPath("~/.local/share/shop")
}

// ExpandPath expands environment variables, then a leading ~ or ~user.
// A path naming an unknown user is returned unchanged.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return path
	}

	name, rest, _ := strings.Cut(path[1:], "/")
	home := homeDir(name)
	if home == "" {
		return path
	}
	return filepath.Join(home, rest)
}

func homeDir(name string) string {
	if name == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return home
	}
	u, err := user.Lookup(name)
	if err != nil {
		return ""
	}
	return u.HomeDir
}
