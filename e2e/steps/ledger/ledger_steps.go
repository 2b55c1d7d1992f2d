package ledger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(ctx context.Context, method, path, actor string, body any, headers map[string]string) error
	Address(actor string) string
	LastStatus() int
	LastHeader(name string) string
	ResponseField(field string) (any, error)
	SetLastUnit(id uint64)
	LastUnit() (uint64, error)
}

// RegisterSteps registers contribution and assignment step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ledgerSteps{tc: tc}

	ctx.Step(`^"([^"]*)" contributes "([^"]*)" wei$`, steps.contribute)
	ctx.Step(`^"([^"]*)" contributes "([^"]*)" wei with idempotency key "([^"]*)"$`, steps.contributeWithKey)
	ctx.Step(`^"([^"]*)" assigns the unit to "([^"]*)", "([^"]*)" and "([^"]*)" in "([^"]*)"$`, steps.assign)
	ctx.Step(`^(\d+) units? should have been minted$`, steps.mintedCount)
	ctx.Step(`^the response should be a replay$`, steps.replayed)
}

type ledgerSteps struct {
	tc TestContext
}

func (s *ledgerSteps) contribute(ctx context.Context, donor, amount string) error {
	return s.contributeWithKey(ctx, donor, amount, "")
}

func (s *ledgerSteps) contributeWithKey(ctx context.Context, donor, amount, key string) error {
	var headers map[string]string
	if key != "" {
		// Keys are scoped per caller, and donors are fresh each scenario.
		headers = map[string]string{"Idempotency-Key": key}
	}
	if err := s.tc.Request(ctx, http.MethodPost, "/contributions", donor, map[string]string{"amount_wei": amount}, headers); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return nil
	}
	minted, err := s.tc.ResponseField("minted")
	if err != nil {
		return err
	}
	if ids, ok := minted.([]any); ok && len(ids) > 0 {
		if last, ok := ids[len(ids)-1].(float64); ok {
			s.tc.SetLastUnit(uint64(last))
		}
	}
	return nil
}

func (s *ledgerSteps) assign(ctx context.Context, actor, team, relief, recipient, location string) error {
	id, err := s.tc.LastUnit()
	if err != nil {
		return err
	}
	return s.tc.Request(ctx, http.MethodPost, fmt.Sprintf("/units/%d/assignment", id), actor, map[string]string{
		"transfer_team": s.tc.Address(team),
		"ground_relief": s.tc.Address(relief),
		"recipient":     s.tc.Address(recipient),
		"location":      location,
	}, nil)
}

func (s *ledgerSteps) mintedCount(_ context.Context, n int) error {
	minted, err := s.tc.ResponseField("minted")
	if err != nil {
		return err
	}
	ids, _ := minted.([]any)
	if len(ids) != n {
		return fmt.Errorf("expected %d minted units, got %v", n, minted)
	}
	return nil
}

func (s *ledgerSteps) replayed(context.Context) error {
	if s.tc.LastHeader("Idempotent-Replayed") != "true" {
		return fmt.Errorf("expected a replayed response")
	}
	return nil
}
