package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoteReturnsFinisher(t *testing.T) {
	logger := NewLogger("debug")
	_, n := Start(context.Background(), logger, "buildhost", "foo.c")
	finish := n.Note(PhaseConnect, Remote)
	require.NotNil(t, finish)
	finish()
	n.ObserveBytes("DOTI", 1024)
	n.Summary(1024)
	n.Finish()
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "CONNECT", PhaseConnect.String())
	require.Equal(t, "SEND", PhaseSend.String())
	require.Equal(t, "CPP", PhaseCPP.String())
	require.Equal(t, "COMPILE", PhaseCompile.String())
	require.Equal(t, "LOCAL", Local.String())
	require.Equal(t, "REMOTE", Remote.String())
}
