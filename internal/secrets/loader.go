package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a secret may come from, in priority order: File, Value, Env
type Source struct {
	// Name is used in error messages
	Name string
	// Value is an inline value from the config file or flags
	Value string
	// File points to a file containing the secret
	File string
	// Env lists environment variables consulted when neither File nor Value is set
	Env []string
}

// Load resolves the secret value from src. The returned secret is always trimmed.
// An error is returned when no source holds a usable secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	for _, key := range src.Env {
		if secret := strings.TrimSpace(os.Getenv(key)); secret != "" {
			return secret, nil
		}
	}

	if len(src.Env) > 0 {
		return "", fmt.Errorf("%s is not configured (set %s)", name, strings.Join(src.Env, " or "))
	}
	return "", fmt.Errorf("%s is not configured", name)
}
