package e2e

import (
	"github.com/cucumber/godog"

	"aidchain/e2e/steps/common"
	"aidchain/e2e/steps/custody"
	"aidchain/e2e/steps/ledger"
	"aidchain/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registry.RegisterSteps(ctx, tc)
	ledger.RegisterSteps(ctx, tc)
	custody.RegisterSteps(ctx, tc)
}
