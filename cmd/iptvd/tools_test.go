package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTemplatizeCommand(t *testing.T) {
	out, err := execute(t, "templatize",
		"http://124.232.231.172:8089/000000002000/201500000063/1000.m3u8?starttime=20240102T030405.06Z")
	require.NoError(t, err)
	require.Equal(t, "http://{server}/000000002000/201500000063/1000.m3u8?starttime={timestamp}", out)

	_, err = execute(t, "templatize")
	require.Error(t, err)
}

func TestResolveCommand(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	out, err := execute(t, "resolve", "--state", missing, "--server", "10.0.0.1:80",
		"http://{server}/live.m3u8?starttime={timestamp}")
	require.NoError(t, err)
	require.Regexp(t, `^http://10\.0\.0\.1:80/live\.m3u8\?starttime=\d{8}T\d{6}\.\d{2}Z$`, out)
	_, statErr := os.Stat(missing)
	require.True(t, os.IsNotExist(statErr), "resolve must not create the state file")

	out, err = execute(t, "resolve", "--state", missing, "rtp://239.76.253.151:9000")
	require.NoError(t, err)
	require.Equal(t, "rtp://239.76.253.151:9000", out)
}

func TestResolveCommandEmptyPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels: []\nservers: []\nclock:\n  known_sources: [pool.ntp.org]\n  current_source: pool.ntp.org\n"), 0o644))

	out, err := execute(t, "resolve", "--state", path, "http://{server}/x?starttime={timestamp}")
	require.Error(t, err)
	require.Contains(t, out, "http://{server}/x?starttime=")
}
