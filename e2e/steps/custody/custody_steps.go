package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(ctx context.Context, method, path, actor string, body any, headers map[string]string) error
	LastBody() []byte
	LastUnit() (uint64, error)
}

// RegisterSteps registers custody state machine step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &custodySteps{tc: tc}

	ctx.Step(`^"([^"]*)" initializes custody of the unit$`, steps.initialize)
	ctx.Step(`^"([^"]*)" marks the unit (in transit|delivered|claimed)$`, steps.advance)
	ctx.Step(`^"([^"]*)" opens the unit journey$`, steps.journey)
	ctx.Step(`^the allowed actions should be "([^"]*)"$`, steps.allowedShouldBe)
}

type custodySteps struct {
	tc TestContext
}

var advancePaths = map[string]string{
	"in transit": "transport",
	"delivered":  "delivery",
	"claimed":    "claim",
}

func (s *custodySteps) unitPath(suffix string) (string, error) {
	id, err := s.tc.LastUnit()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/units/%d/%s", id, suffix), nil
}

func (s *custodySteps) initialize(ctx context.Context, actor string) error {
	path, err := s.unitPath("custody")
	if err != nil {
		return err
	}
	return s.tc.Request(ctx, http.MethodPost, path, actor, nil, nil)
}

func (s *custodySteps) advance(ctx context.Context, actor, step string) error {
	path, err := s.unitPath("custody/" + advancePaths[step])
	if err != nil {
		return err
	}
	return s.tc.Request(ctx, http.MethodPost, path, actor, nil, nil)
}

func (s *custodySteps) journey(ctx context.Context, actor string) error {
	path, err := s.unitPath("journey?init=true")
	if err != nil {
		return err
	}
	return s.tc.Request(ctx, http.MethodGet, path, actor, nil, nil)
}

// allowedShouldBe compares against a comma separated list; "none" means empty.
func (s *custodySteps) allowedShouldBe(_ context.Context, want string) error {
	var body struct {
		Allowed []string `json:"allowed"`
	}
	if err := json.Unmarshal(s.tc.LastBody(), &body); err != nil {
		return fmt.Errorf("decode journey: %w", err)
	}
	expected := []string{}
	if want != "none" {
		for a := range strings.SplitSeq(want, ",") {
			expected = append(expected, strings.TrimSpace(a))
		}
	}
	if !slices.Equal(expected, body.Allowed) {
		return fmt.Errorf("expected allowed actions %v, got %v", expected, body.Allowed)
	}
	return nil
}
