package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRcpdRequiresMasterAddr(t *testing.T) {
	var f rcpdFlags
	err := runRcpd(&cobra.Command{}, &f)
	assert.Error(t, err)
}

func TestRunRcpdProtocolVersionPrintsAndSkipsDial(t *testing.T) {
	f := rcpdFlags{protocolVersion: true}
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, runRcpd(cmd, &f))
	assert.NotEmpty(t, out.String())
}
