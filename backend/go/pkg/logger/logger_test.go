package logger

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	base, hook := test.NewNullLogger()
	parent := FromEntry(logrus.NewEntry(base))

	child := parent.WithField("source_id", "a.pdf").WithError(errors.New("boom"))
	child.Error("insert failed")
	parent.Info("still clean")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a.pdf", entries[0].Data["source_id"])
	assert.NotNil(t, entries[0].Data[logrus.ErrorKey])
	_, leaked := entries[1].Data["source_id"]
	assert.False(t, leaked)
}
