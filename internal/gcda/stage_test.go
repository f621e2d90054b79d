package gcda

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rdistcc/internal/mangle"
)

func TestProfileUseBareFlag(t *testing.T) {
	requested, path := ProfileUse([]string{"cc", "-c", "a.i", "-fprofile-use", "-o", "a.o"})
	require.True(t, requested)
	require.Empty(t, path)
}

func TestProfileUseExplicitPath(t *testing.T) {
	requested, path := ProfileUse([]string{"cc", "-fprofile-use=/p", "-o", "a.o"})
	require.True(t, requested)
	require.Equal(t, "/p", path, "must store only <rest>, no duplicated prefix")
}

func TestProfileUseAbsent(t *testing.T) {
	requested, path := ProfileUse([]string{"cc", "-c", "a.i", "-o", "a.o"})
	require.False(t, requested)
	require.Empty(t, path)
}

func TestExpectedPathRelativeOutputExplicitPath(t *testing.T) {
	got := ExpectedPath("/home/build", "a.o", "/p")
	want := filepath.Join("/p", mangle.Path("/home/build")+"#"+mangle.Path("a")+".gcda")
	require.Equal(t, want, got)
}

func TestExpectedPathRelativeOutputNoExplicitPath(t *testing.T) {
	got := ExpectedPath("/home/build", "a.o", "")
	require.Equal(t, filepath.Join("/home/build", "a.gcda"), got)
}

func TestExpectedPathAbsoluteOutputExplicitPath(t *testing.T) {
	got := ExpectedPath("/home/build", "/abs/out/a.o", "/p")
	require.Equal(t, filepath.Join("/p", mangle.Path("/abs/out/a")+".gcda"), got)
}

func TestExpectedPathAbsoluteOutputNoExplicitPath(t *testing.T) {
	got := ExpectedPath("/home/build", "/abs/out/a.o", "")
	require.Equal(t, "/abs/out/a.gcda", got)
}

func TestGuardTmpDirRejectsFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.Error(t, GuardTmpDir(f))
}

func TestStageMissingSourceAbortsQuietly(t *testing.T) {
	dir := t.TempDir()
	reg := NewCleanupRegistry()
	staging, ok, err := Stage(reg, dir, filepath.Join(dir, "does-not-exist.gcda"), filepath.Join(dir, "a.i"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, staging)
	require.Equal(t, 0, reg.Len())
}

func TestStageCopiesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.gcda")
	require.NoError(t, os.WriteFile(src, []byte("profile-data"), 0o644))

	reg := NewCleanupRegistry()
	staging, ok, err := Stage(reg, dir, src, filepath.Join(dir, "a.i"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "a.gcda"), staging.StagedPath)

	data, err := os.ReadFile(staging.StagedPath)
	require.NoError(t, err)
	require.Equal(t, "profile-data", string(data))
	require.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Drain())
	_, err = os.Stat(staging.StagedPath)
	require.True(t, os.IsNotExist(err))
}

func TestStageRetriesOnExistingStagingFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.gcda")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.gcda"), []byte("stale"), 0o600))

	reg := NewCleanupRegistry()
	staging, ok, err := Stage(reg, dir, src, filepath.Join(dir, "a.i"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "a-2.gcda"), staging.StagedPath)
}
