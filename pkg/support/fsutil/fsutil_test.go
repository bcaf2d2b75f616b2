// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	t.Setenv("SYMSHAPE_TEST_DIR", "/tmp/graphs")

	for _, tc := range []struct{ path, want string }{
		{"", ""},
		{"graphs.yaml", "graphs.yaml"},
		{"$SYMSHAPE_TEST_DIR/a.yaml", "/tmp/graphs/a.yaml"},
		{"~", usr.HomeDir},
		{"~/a.yaml", filepath.Join(usr.HomeDir, "a.yaml")},
		{"~" + usr.Username + "/a.yaml", filepath.Join(usr.HomeDir, "a.yaml")},
	} {
		got, err := ExpandPath(tc.path)
		require.NoError(t, err, "ExpandPath(%q)", tc.path)
		require.Equal(t, tc.want, got, "ExpandPath(%q)", tc.path)
	}

	_, err = ExpandPath("~no_such_user_hopefully/a.yaml")
	require.Error(t, err)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	exists, err := FileExists(dir)
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.False(t, exists)
}
