package e2e

import (
	"github.com/cucumber/godog"

	"vouch/e2e/harness"
	"vouch/e2e/steps/common"
	"vouch/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *harness.TestContext) {
	common.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
}
