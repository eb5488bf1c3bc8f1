package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsInvertedFeePercentRange(t *testing.T) {
	cfg := Default()
	cfg.CommitFeeMinPercent = 1000
	cfg.CommitFeeMaxPercent = 50

	err := cfg.Validate()
	require.Error(t, err)
}
