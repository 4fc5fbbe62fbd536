package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSecretFromEnv(t *testing.T) {
	t.Setenv("TEST_SECRET", "from-env")

	value, err := GetSecret("TEST_SECRET", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestGetSecretFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0o600))

	t.Setenv("TEST_SECRET", "from-env")
	t.Setenv("TEST_SECRET_FILE", path)

	value, err := GetSecret("TEST_SECRET", "")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value, "file variant wins and is trimmed")
}

func TestGetSecretDefault(t *testing.T) {
	value, err := GetSecret("TEST_SECRET_UNSET", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)
}

func TestGetSecretUnreadableFile(t *testing.T) {
	t.Setenv("TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := GetSecret("TEST_SECRET", "fallback")
	assert.Error(t, err)
}

func TestGetOptionalSecretSwallowsFileErrors(t *testing.T) {
	t.Setenv("TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, "fallback", GetOptionalSecret("TEST_SECRET", "fallback"))
}

func TestMustGetSecretPanicsWhenUnset(t *testing.T) {
	assert.Panics(t, func() { MustGetSecret("TEST_SECRET_UNSET") })
}
