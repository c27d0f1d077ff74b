package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/platform/logger"
)

func TestAcceptanceScenariosPass(t *testing.T) {
	suite := NewSuite(logger.Discard(), false)
	suite.RunTest(context.Background())

	results := suite.GetResults()
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Passed, "%s: %s (actual %s)", r.ScenarioName, r.Reason, r.Actual)
	}
}

func TestCancelledContextRunsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := NewSuite(logger.Discard(), false)
	suite.RunTest(ctx)
	assert.Empty(t, suite.GetResults())
}
