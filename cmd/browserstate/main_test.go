package main

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPushListPullDelete(t *testing.T) {
	base := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("user_id: alice\nlocal:\n  path: "+base+"\n"), 0o600))
	t.Setenv("BROWSERSTATE_LOCAL_TEMP_DIR", t.TempDir())

	profile := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(profile, "Cookies"), []byte("jar"), 0o644))

	_, err := run(t, "--config", cfgPath, "push", "work", profile)
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Equal(t, "work\n", out)

	out, err = run(t, "--config", cfgPath, "pull", "work")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(strings.TrimSpace(out), "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "jar", string(data))

	dest := filepath.Join(t.TempDir(), "restored")
	out, err = run(t, "--config", cfgPath, "pull", "work", dest)
	require.NoError(t, err)
	assert.Equal(t, dest+"\n", out)
	data, err = os.ReadFile(filepath.Join(dest, "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "jar", string(data))

	_, err = run(t, "--config", cfgPath, "delete", "work")
	require.NoError(t, err)
	out, err = run(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUserFlagOverridesConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("user_id: alice\n"), 0o600))

	out, err := run(t, "--config", cfgPath, "--user", "bob", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "# backend: local")
	assert.Contains(t, out, "user_id: bob")
}

func TestPushRejectsFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("user_id: alice\nlocal:\n  path: "+t.TempDir()+"\n"), 0o600))
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := run(t, "--config", cfgPath, "push", "s", file)
	assert.ErrorContains(t, err, "not a directory")
}
