package cmd

import (
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2026-08-24",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	underlying := errors.New("boom")
	err := exitError(foundry.ExitInvalidArgument, "Bad flag", underlying)

	assert.EqualError(t, err, "Bad flag: boom")
	assert.ErrorIs(t, err, underlying)

	var coded *codedError
	assert.ErrorAs(t, err, &coded)
	assert.Equal(t, foundry.ExitInvalidArgument, coded.code)
}

func TestExitErrorWithoutCause(t *testing.T) {
	err := exitError(foundry.ExitFileReadError, "Cannot read file", nil)
	assert.EqualError(t, err, "Cannot read file")
}
