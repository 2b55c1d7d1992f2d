package registry

import (
	"context"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(ctx context.Context, method, path, actor string, body any, headers map[string]string) error
	Address(actor string) string
}

// RegisterSteps registers participant registry step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^"([^"]*)" registers "([^"]*)" as a (transporter|ground_handler|recipient) in "([^"]*)"$`, steps.register)
	ctx.Step(`^the participants are registered in "([^"]*)":$`, steps.registerTable)
	ctx.Step(`^I look up participant "([^"]*)"$`, steps.describe)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) register(ctx context.Context, actor, target, role, location string) error {
	return s.tc.Request(ctx, http.MethodPost, "/participants", actor, map[string]string{
		"address":  s.tc.Address(target),
		"role":     role,
		"location": location,
	}, nil)
}

// registerTable expects rows of | name | role |, registered by the authority.
func (s *registrySteps) registerTable(ctx context.Context, location string, table *godog.Table) error {
	for _, row := range table.Rows {
		if len(row.Cells) < 2 || row.Cells[0].Value == "name" {
			continue
		}
		if err := s.register(ctx, "authority", row.Cells[0].Value, row.Cells[1].Value, location); err != nil {
			return err
		}
	}
	return nil
}

func (s *registrySteps) describe(ctx context.Context, actor string) error {
	return s.tc.Request(ctx, http.MethodGet, "/participants/"+s.tc.Address(actor), "", nil, nil)
}
