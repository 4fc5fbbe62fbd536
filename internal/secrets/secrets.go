package secrets

import (
	"fmt"
	"os"
	"strings"
)

// fileSuffix marks the env var variant that points at a file holding the
// value instead of carrying it inline (Docker/Kubernetes secret mounts).
const fileSuffix = "_FILE"

// GetSecret resolves a secret by env key. Resolution order:
//  1. <KEY>_FILE pointing at a mounted secret file (value is trimmed)
//  2. <KEY> set directly in the environment
//  3. the provided default
//
// A missing secret with no default resolves to the empty string without error;
// only an unreadable secret file is an error.
func GetSecret(envKey string, defaultValue string) (string, error) {
	value, found, err := lookup(envKey)
	if err != nil {
		return "", err
	}
	if found {
		return value, nil
	}
	return defaultValue, nil
}

// MustGetSecret resolves a required secret and panics when it is absent.
// Intended for startup-time configuration only.
func MustGetSecret(envKey string) string {
	value, err := GetSecret(envKey, "")
	if err != nil {
		panic(fmt.Sprintf("failed to load secret %s: %v", envKey, err))
	}
	if value == "" {
		panic(fmt.Sprintf("secret %s is required but not set", envKey))
	}
	return value
}

// GetOptionalSecret resolves a secret, swallowing file read errors in favor
// of the default.
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, err := GetSecret(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func lookup(envKey string) (string, bool, error) {
	if filePath := os.Getenv(envKey + fileSuffix); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", false, fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), true, nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, true, nil
	}

	return "", false, nil
}
