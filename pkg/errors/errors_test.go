package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContextChain(t *testing.T) {
	base := New("disk full")
	wrapped := WithContext(WithContext(base, "write record"), "mark first run")

	assert.Equal(t, "mark first run: write record: disk full", wrapped.Error())
	assert.True(t, Is(wrapped, base))
}

func TestGetPrintableMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  string
	}{
		{
			name: "PlainError",
			err:  New("boom"),
			exp:  "boom",
		},
		{
			name: "ContextChain",
			err:  WithContext(New("boom"), "do thing"),
			exp:  "do thing: boom",
		},
		{
			name: "FriendlyWins",
			err: WithContext(
				NewFriendlyError("Please run with --first-run."), "resolve phase"),
			exp: "Please run with --first-run.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, GetPrintableMessage(test.err))
		})
	}
}

func TestTypedErrors(t *testing.T) {
	missing := MissingConfigError{Keys: []string{"LOCK_DIR", "SOURCE_DIR"}}
	assert.Equal(t,
		"missing required configuration: LOCK_DIR, SOURCE_DIR",
		missing.Error())

	var target MissingConfigError
	assert.True(t, As(WithContext(missing, "resolve"), &target))
	assert.Equal(t, missing.Keys, target.Keys)

	subprocess := SubprocessError{ExitCode: 2, LogPath: "/logs/sync.log"}
	assert.Contains(t, subprocess.Error(), "code 2")
	assert.Contains(t, subprocess.Error(), "/logs/sync.log")
}
