package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPasswordFromPipedInput(t *testing.T) {
	var prompt bytes.Buffer
	password, err := readPassword(strings.NewReader("s3cret\r\nignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)
	assert.Equal(t, "Password: ", prompt.String())
}

func TestReadPasswordFromNonTerminalFile(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	_, err = w.WriteString("hunter2")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var prompt bytes.Buffer
	password, err := readPassword(r, &prompt)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestPasswordFlagWins(t *testing.T) {
	flagPassword = "from-flag"
	defer func() { flagPassword = "" }()

	password, err := passwordFromFlagOrInput(strings.NewReader("from-input\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-flag", password)
}
