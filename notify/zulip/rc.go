package zulip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

var ErrIncompleteRC = errors.New("zuliprc is missing email, key or site")

// Credentials identify the bot posting notifications.
type Credentials struct {
	Email string
	Key   string
	Site  string
}

// LoadRC reads the [api] section of a zuliprc file.
func LoadRC(path string) (Credentials, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read zuliprc %s: %w", path, err)
	}
	api := f.Section("api")
	creds := Credentials{
		Email: api.Key("email").String(),
		Key:   api.Key("key").String(),
		Site:  strings.TrimRight(api.Key("site").String(), "/"),
	}
	if creds.Email == "" || creds.Key == "" || creds.Site == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrIncompleteRC, path)
	}
	if !strings.Contains(creds.Site, "://") {
		creds.Site = "https://" + creds.Site
	}
	return creds, nil
}

// FindRC looks for "zuliprc" or "secrets/zuliprc" in dir and each of its
// parents.
func FindRC(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		for _, candidate := range []string{
			filepath.Join(dir, "zuliprc"),
			filepath.Join(dir, "secrets", "zuliprc"),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
