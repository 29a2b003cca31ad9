package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/credentials"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "arbengine version dev\n", out)
}

func TestEncryptSecret(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "venue.enc")

	out, err := execute(t, "s3cr3t\n", "encrypt-secret", "--out", dst, "--password", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dst)

	secret, err := credentials.Resolve("", dst, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptSecret_Errors(t *testing.T) {
	t.Setenv(passwordEnv, "")
	dst := filepath.Join(t.TempDir(), "venue.enc")

	_, err := execute(t, "s3cr3t\n", "encrypt-secret", "--out", dst)
	require.ErrorContains(t, err, "no password")

	_, err = execute(t, "", "encrypt-secret", "--out", dst, "--password", "pw")
	require.ErrorContains(t, err, "no secret on stdin")

	_, err = execute(t, "x\n", "encrypt-secret", "--password", "pw")
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, "mode = \"paper\"\n\n[engine]\ninstruments = [\"EUR/USD\", \"GBP/USD\"]\n")

	out, err := execute(t, "", "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "2 instruments")

	bad := writeConfig(t, "mode = \"yolo\"\n")
	_, err = execute(t, "", "config", "validate", "--config", bad)
	require.ErrorContains(t, err, "mode")

	_, err = execute(t, "", "config", "validate", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestConfigShowRedacts(t *testing.T) {
	path := writeConfig(t, "[server]\napi_key = \"topsecret\"\n")

	out, err := execute(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "topsecret")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, "[engine]")
}

func TestMigrateSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "arb.db")
	path := writeConfig(t, "[storage]\nbackend = \"sqlite\"\nsqlite_path = \""+filepath.ToSlash(db)+"\"\n")

	out, err := execute(t, "", "migrate", "--config", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "applied sqlite:")
	assert.FileExists(t, db)
}
