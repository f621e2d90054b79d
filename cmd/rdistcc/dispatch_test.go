package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInputFilePicksLastNonFlagArgument(t *testing.T) {
	require.Equal(t, "foo.c", inputFile([]string{"cc", "-Wall", "-c", "foo.c"}))
}

func TestInputFileSkipsOutputArgument(t *testing.T) {
	require.Equal(t, "foo.c", inputFile([]string{"cc", "-c", "foo.c", "-o", "foo.o"}))
}

func TestInputFileEmptyWhenNoSource(t *testing.T) {
	require.Equal(t, "", inputFile([]string{"cc", "-v"}))
}

func TestOutputFileFound(t *testing.T) {
	out, ok := outputFile([]string{"cc", "-c", "foo.c", "-o", "foo.o"})
	require.True(t, ok)
	require.Equal(t, "foo.o", out)
}

func TestOutputFileMissing(t *testing.T) {
	_, ok := outputFile([]string{"cc", "-c", "foo.c"})
	require.False(t, ok)
}

func TestDefaultObjectName(t *testing.T) {
	require.Equal(t, "foo.o", defaultObjectName("foo.c"))
	require.Equal(t, "a.out", defaultObjectName(""))
}

func TestDefaultObjectNameStripsDirectory(t *testing.T) {
	require.Equal(t, "foo.o", defaultObjectName("/tmp/build/foo.c"))
}

func TestCppArgvOfAppendsDashE(t *testing.T) {
	got := cppArgvOf([]string{"cc", "-Wall", "-c", "foo.c"})
	require.Equal(t, []string{"cc", "-Wall", "-c", "foo.c", "-E"}, got)
}

func TestCppArgvOfStripsOutputArgument(t *testing.T) {
	got := cppArgvOf([]string{"cc", "-c", "foo.c", "-o", "foo.o"})
	require.Equal(t, []string{"cc", "-c", "foo.c", "-E"}, got)
}

func TestNonZeroExit(t *testing.T) {
	require.Equal(t, 1, nonZeroExit(0))
	require.Equal(t, 2, nonZeroExit(2))
}

func TestExitStatusErrorCarriesCodeSilently(t *testing.T) {
	var err error = &exitStatusError{code: 3}
	require.Equal(t, "", err.Error())

	var exitErr *exitStatusError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.code)
}
