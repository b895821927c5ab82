package shell_test

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMountedShell formats and mounts a scratch image through the shell's own
// commands.
func newMountedShell(t *testing.T) (*shell.Shell, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	sh := shell.New(out)

	path := filepath.Join(t.TempDir(), "img.fs")
	require.NoError(t, sh.Execute("format "+path+" min"))
	require.NoError(t, sh.Execute("mount "+path))
	out.Reset()
	return sh, out
}

func TestShellEndToEnd(t *testing.T) {
	sh, out := newMountedShell(t)

	require.NoError(t, sh.Execute("create a.txt"))
	require.NoError(t, sh.Execute("write a.txt Hello, World!"))
	require.NoError(t, sh.Execute("read a.txt"))
	assert.Equal(t, "Hello, World!\n", out.String())

	out.Reset()
	require.NoError(t, sh.Execute("ls"))
	assert.Contains(t, out.String(), "a.txt")
	assert.Contains(t, out.String(), "FILE")
	assert.Contains(t, out.String(), "13")
}

func TestShellWritePayloadIsRestOfLine(t *testing.T) {
	sh, out := newMountedShell(t)

	require.NoError(t, sh.Execute("create spaced"))
	require.NoError(t, sh.Execute("write spaced one two   three"))
	require.NoError(t, sh.Execute("read spaced"))
	assert.Equal(t, "one two   three\n", out.String())
}

func TestShellDirectoryCommands(t *testing.T) {
	sh, out := newMountedShell(t)

	require.NoError(t, sh.Execute("mkdir docs"))
	require.NoError(t, sh.Execute("cd docs"))
	require.NoError(t, sh.Execute("ls"))
	assert.Contains(t, out.String(), "DIR")

	fs := sh.FileSystem()
	require.NotNil(t, fs)
	assert.Equal(t, "/docs", fs.CurrentPath())

	require.NoError(t, sh.Execute("cd .."))
	assert.Equal(t, "/", fs.CurrentPath())

	require.NoError(t, sh.Execute("rmdir docs"))
	err := sh.Execute("cd docs")
	assert.ErrorIs(t, err, myfatfs.ErrNotFound)
}

func TestShellTruncate(t *testing.T) {
	sh, out := newMountedShell(t)

	payload := strings.Repeat("A", 2049)
	require.NoError(t, sh.Execute("create x"))
	require.NoError(t, sh.Execute(fmt.Sprintf("write x %s", payload)))
	require.NoError(t, sh.Execute("truncate x 500"))
	require.NoError(t, sh.Execute("read x"))
	assert.Equal(t, strings.Repeat("A", 500)+"\n", out.String())

	err := sh.Execute("truncate x 999999")
	assert.ErrorIs(t, err, myfatfs.ErrCannotGrow)
}

func TestShellErrorsSurface(t *testing.T) {
	out := &bytes.Buffer{}
	sh := shell.New(out)

	assert.ErrorIs(t, sh.Execute("ls"), myfatfs.ErrNotMounted)
	assert.ErrorIs(t, sh.Execute("unmount"), myfatfs.ErrNotMounted)
	assert.Error(t, sh.Execute("frobnicate"))

	sh, _ = newMountedShell(t)
	assert.ErrorIs(t, sh.Execute("read missing"), myfatfs.ErrNotFound)
	require.NoError(t, sh.Execute("create dup"))
	assert.ErrorIs(t, sh.Execute("create dup"), myfatfs.ErrExists)
}

func TestShellUnmountAndRemount(t *testing.T) {
	out := &bytes.Buffer{}
	sh := shell.New(out)
	path := filepath.Join(t.TempDir(), "img.fs")

	require.NoError(t, sh.Execute("format "+path+" min"))
	require.NoError(t, sh.Execute("mount "+path))
	require.NoError(t, sh.Execute("create keep"))
	require.NoError(t, sh.Execute("write keep data"))
	require.NoError(t, sh.Execute("unmount"))

	require.NoError(t, sh.Execute("mount "+path))
	out.Reset()
	require.NoError(t, sh.Execute("read keep"))
	assert.Equal(t, "data\n", out.String())
}

func TestShellRunLoop(t *testing.T) {
	out := &bytes.Buffer{}
	sh := shell.New(out)
	path := filepath.Join(t.TempDir(), "img.fs")

	script := strings.Join([]string{
		"format " + path + " min",
		"mount " + path,
		"create f",
		"write f from the loop",
		"read f",
		"bogus command",
		"exit",
	}, "\n")

	require.NoError(t, sh.Run(strings.NewReader(script)))
	assert.Contains(t, out.String(), "from the loop")
	assert.Contains(t, out.String(), "error:")
	assert.Nil(t, sh.FileSystem(), "exit unmounts")
}
