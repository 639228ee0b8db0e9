package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn)

	log.Log(LevelInfo, "should not appear")
	require.Empty(t, buf.String())

	log.Log(LevelWarn, "should appear", "key", "value")
	require.Contains(t, buf.String(), "should appear")
	require.Contains(t, buf.String(), "key")
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug).With("component", "control")

	log.Log(LevelError, "boom")
	out := buf.String()
	require.Contains(t, out, "component")
	require.Contains(t, out, "control")
	require.Contains(t, out, "boom")
}

func TestLevelsMapToDistinctOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug)

	log.Log(LevelDebug, "dbg")
	log.Log(LevelInfo, "inf")
	log.Log(LevelWarn, "wrn")
	log.Log(LevelError, "err")

	out := buf.String()
	for _, want := range []string{"dbg", "inf", "wrn", "err"} {
		require.True(t, strings.Contains(out, want), "missing %q in %q", want, out)
	}
}

func TestDiscardIsSilentAndChainable(t *testing.T) {
	Discard.Log(LevelError, "whatever")
	Discard.With("a", "b").Log(LevelError, "whatever")
}
