package cliutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wykurz/rcp-sub001/fserr"
)

func TestExitCodeClassifiesErrors(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(fserr.Config("parse", "--foo", errors.New("bad"))))
	assert.Equal(t, ExitFailure, ExitCode(fserr.IO("open", "/tmp/x", errors.New("boom"))))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("untyped")))
}

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, "error", NewLogger(0, true).GetLevel().String())
	assert.Equal(t, "warning", NewLogger(0, false).GetLevel().String())
	assert.Equal(t, "info", NewLogger(1, false).GetLevel().String())
	assert.Equal(t, "debug", NewLogger(2, false).GetLevel().String())
	assert.Equal(t, "trace", NewLogger(3, false).GetLevel().String())
}
