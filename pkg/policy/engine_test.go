package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

func testGuardInput() engine.GuardInput {
	return engine.GuardInput{
		Opportunity: &engine.Opportunity{
			ID:                     "opp-1",
			ServiceName:            "ec2",
			ResourceID:             "i-0test",
			OptimizationType:       engine.OptimizationRightsizing,
			Provider:               engine.ProviderAWS,
			Region:                 "us-east-1",
			CurrentCost:            200,
			PotentialSavings:       80,
			RiskLevel:              engine.RiskLow,
			EstimatedExecutionTime: 30,
		},
		ExecutedBy: "finops@example.com",
		CurrentConfig: engine.Config{
			"instance_type": "m5.xlarge",
			"state":         "running",
		},
	}
}

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"require-operator",
		"destructive-risk",
		"protected-resources",
		"production-change",
		"savings-sanity",
		"long-execution",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateCleanSubmission(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	result, err := eng.EvaluateInput(context.Background(), testGuardInput())
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Expected clean submission to be allowed. Violations: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations, got %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != len(GetBuiltinPolicies()) {
		t.Errorf("Expected %d evaluated policies, got %d",
			len(GetBuiltinPolicies()), len(result.EvaluatedPolicies))
	}
}

func TestRequireOperatorPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := testGuardInput()
	input.ExecutedBy = ""

	decision, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if decision.Allowed {
		t.Error("Expected submission without an operator to be denied")
	}
	if len(decision.Reasons) == 0 {
		t.Fatal("Expected at least one denial reason")
	}
}

func TestDestructiveRiskPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		mutate        func(*engine.GuardInput)
		expectAllowed bool
		expectPolicy  string
	}{
		{
			name: "high-risk destructive optimization denied",
			mutate: func(in *engine.GuardInput) {
				in.Opportunity.OptimizationType = engine.OptimizationUnusedResources
				in.Opportunity.RiskLevel = engine.RiskHigh
			},
			expectAllowed: false,
			expectPolicy:  "destructive-risk",
		},
		{
			name: "low-risk destructive optimization allowed",
			mutate: func(in *engine.GuardInput) {
				in.Opportunity.OptimizationType = engine.OptimizationUnusedResources
				in.Opportunity.RiskLevel = engine.RiskLow
			},
			expectAllowed: true,
		},
		{
			name: "high-risk rightsizing without change ticket denied",
			mutate: func(in *engine.GuardInput) {
				in.Opportunity.RiskLevel = engine.RiskHigh
			},
			expectAllowed: false,
			expectPolicy:  "destructive-risk",
		},
		{
			name: "high-risk rightsizing with change ticket allowed",
			mutate: func(in *engine.GuardInput) {
				in.Opportunity.RiskLevel = engine.RiskHigh
				in.Opportunity.Metadata = map[string]interface{}{
					"change_ticket": "CHG-4211",
				}
			},
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testGuardInput()
			tt.mutate(&input)

			result, err := eng.EvaluateInput(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			if tt.expectPolicy != "" {
				found := false
				for _, v := range result.Violations {
					if v.Policy == tt.expectPolicy {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected a violation from policy %s, got %+v",
						tt.expectPolicy, result.Violations)
				}
			}
		})
	}
}

func TestProtectedResourcePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		mutate        func(*engine.GuardInput)
		expectAllowed bool
	}{
		{
			name: "protected flag blocks any optimization",
			mutate: func(in *engine.GuardInput) {
				in.CurrentConfig["protected"] = true
			},
			expectAllowed: false,
		},
		{
			name: "deletion protection blocks destructive optimization",
			mutate: func(in *engine.GuardInput) {
				in.Opportunity.OptimizationType = engine.OptimizationUnusedResources
				in.CurrentConfig["deletion_protection"] = true
			},
			expectAllowed: false,
		},
		{
			name: "deletion protection does not block rightsizing",
			mutate: func(in *engine.GuardInput) {
				in.CurrentConfig["deletion_protection"] = true
			},
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testGuardInput()
			tt.mutate(&input)

			result, err := eng.EvaluateInput(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestProductionChangePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := testGuardInput()
	input.Opportunity.OptimizationType = engine.OptimizationSpotInstances
	input.Opportunity.Metadata = map[string]interface{}{
		"environment": "production",
	}

	result, err := eng.EvaluateInput(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Errorf("Expected production destructive change without ticket to be denied. Violations: %+v",
			result.Violations)
	}

	input.Opportunity.Metadata["change_ticket"] = "CHG-7001"
	result, err = eng.EvaluateInput(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected change ticket to satisfy the policy. Violations: %+v", result.Violations)
	}
}

func TestSavingsSanityPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		currentCost   float64
		savings       float64
		expectAllowed bool
	}{
		{"savings within cost", 200, 80, true},
		{"zero savings", 200, 0, false},
		{"negative savings", 200, -10, false},
		{"savings exceed cost", 100, 150, false},
		{"unknown cost skips comparison", 0, 80, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testGuardInput()
			input.Opportunity.CurrentCost = tt.currentCost
			input.Opportunity.PotentialSavings = tt.savings

			result, err := eng.EvaluateInput(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestLongExecutionWarningDoesNotBlock(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := testGuardInput()
	input.Opportunity.EstimatedExecutionTime = 360

	result, err := eng.EvaluateInput(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Warning severity should not block admission. Violations: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "long-execution" {
			found = true
			if v.Severity != SeverityWarning {
				t.Errorf("Expected warning severity, got %s", v.Severity)
			}
			if v.Blocking() {
				t.Error("Warning violation must not be blocking")
			}
		}
	}
	if !found {
		t.Error("Expected a long-execution violation")
	}

	// The warning must not surface as a denial reason either.
	decision, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Expected guard decision to allow the submission")
	}
	if len(decision.Reasons) != 0 {
		t.Errorf("Expected no denial reasons, got %v", decision.Reasons)
	}
}

func TestGuardDecisionReasonsNamePolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := testGuardInput()
	input.ExecutedBy = ""
	input.Opportunity.PotentialSavings = -5

	decision, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if decision.Allowed {
		t.Fatal("Expected denial")
	}
	if len(decision.Reasons) < 2 {
		t.Fatalf("Expected reasons from both policies, got %v", decision.Reasons)
	}

	for _, policyName := range []string{"require-operator", "savings-sanity"} {
		found := false
		for _, reason := range decision.Reasons {
			if len(reason) >= len(policyName) && reason[:len(policyName)] == policyName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected a reason prefixed with %s, got %v", policyName, decision.Reasons)
		}
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "savings-sanity"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	p, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if p.Enabled {
		t.Error("Policy should be disabled")
	}

	input := testGuardInput()
	input.Opportunity.PotentialSavings = -5

	// Evaluate - should pass because the policy is disabled
	result, err := eng.EvaluateInput(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("Disabled policy should not generate violations")
		}
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	p, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if !p.Enabled {
		t.Error("Policy should be enabled")
	}

	result, err = eng.EvaluateInput(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Re-enabled policy should deny the submission again")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	err = eng.ReloadPolicies(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	afterReloadCount := len(eng.ListPolicies())

	if initialCount != afterReloadCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, afterReloadCount)
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if _, err := eng.GetPolicy("no-such-policy"); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
	if err := eng.EnablePolicy("no-such-policy"); err == nil {
		t.Error("Expected an error enabling an unknown policy")
	}
	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected an error disabling an unknown policy")
	}
}
