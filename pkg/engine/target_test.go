package engine

import (
	"testing"
)

func TestBuildTargetConfigRecommendationWins(t *testing.T) {
	current := Config{"instance_type": "m5.xlarge", "state": "running"}
	opp := testOpportunity(OptimizationRightsizing)
	opp.Recommendation = Config{"instance_type": "t3.medium"}

	target := BuildTargetConfig(current, opp)
	if target["instance_type"] != "t3.medium" {
		t.Errorf("expected recommendation to win, got %v", target["instance_type"])
	}
	if target["state"] != "running" {
		t.Errorf("unrelated attributes must carry over, got %v", target["state"])
	}
	// The source config is not mutated
	if current["instance_type"] != "m5.xlarge" {
		t.Error("current config must not be mutated")
	}
}

func TestBuildTargetConfigSchedulingDefaults(t *testing.T) {
	opp := testOpportunity(OptimizationScheduling)
	opp.Recommendation = nil

	target := BuildTargetConfig(Config{"state": "running"}, opp)
	if target["scheduling_enabled"] != true {
		t.Error("expected scheduling_enabled")
	}
	schedule, ok := target["schedule"].(map[string]interface{})
	if !ok {
		t.Fatal("expected schedule map")
	}
	if schedule["start_cron"] != "0 8 * * 1-5" || schedule["stop_cron"] != "0 18 * * 1-5" {
		t.Errorf("expected business-hours crons, got %v", schedule)
	}
	if schedule["timezone"] != "UTC" {
		t.Errorf("expected UTC timezone, got %v", schedule["timezone"])
	}
}

func TestBuildTargetConfigStorageClassDefaults(t *testing.T) {
	tests := []struct {
		provider CloudProvider
		want     string
	}{
		{ProviderAWS, "STANDARD_IA"},
		{ProviderAzure, "Cool"},
		{ProviderGCP, "NEARLINE"},
	}
	for _, tt := range tests {
		opp := testOpportunity(OptimizationStorage)
		opp.Provider = tt.provider
		opp.Recommendation = nil

		target := BuildTargetConfig(Config{"storage_class": "STANDARD"}, opp)
		if target["storage_class"] != tt.want {
			t.Errorf("%s: expected %s, got %v", tt.provider, tt.want, target["storage_class"])
		}
	}

	// An explicit recommendation suppresses the default
	opp := testOpportunity(OptimizationStorage)
	opp.Recommendation = Config{"storage_class": "GLACIER"}
	target := BuildTargetConfig(Config{}, opp)
	if target["storage_class"] != "GLACIER" {
		t.Errorf("expected recommended storage class, got %v", target["storage_class"])
	}
}

func TestBuildTargetConfigPerType(t *testing.T) {
	unused := BuildTargetConfig(Config{"state": "running"}, testOpportunity(OptimizationUnusedResources))
	if unused["state"] != "terminated" {
		t.Errorf("expected terminated state, got %v", unused["state"])
	}

	reserved := BuildTargetConfig(Config{}, testOpportunity(OptimizationReservedInstances))
	if reserved["pricing_model"] != "reserved" || reserved["reservation_term"] != "1yr" {
		t.Errorf("expected reserved pricing defaults, got %v", reserved)
	}

	spot := BuildTargetConfig(Config{}, testOpportunity(OptimizationSpotInstances))
	if spot["lifecycle"] != "spot" {
		t.Errorf("expected spot lifecycle, got %v", spot["lifecycle"])
	}
}

func TestVerificationTargetExcludesBookkeeping(t *testing.T) {
	target := Config{
		"scheduling_enabled": true,
		"schedule":           map[string]interface{}{"timezone": "UTC"},
	}
	want := verificationTarget(target)
	if _, ok := want["scheduling_enabled"]; ok {
		t.Error("scheduling_enabled must not be verified against the provider")
	}
	if _, ok := want["schedule"]; !ok {
		t.Error("schedule must still be verified")
	}
	// The input is not mutated
	if _, ok := target["scheduling_enabled"]; !ok {
		t.Error("verificationTarget must not mutate its input")
	}
}

func TestConfigCloneAndContains(t *testing.T) {
	src := Config{
		"instance_type": "m5.xlarge",
		"tags":          map[string]interface{}{"env": "prod"},
		"volumes":       []interface{}{"vol-1", "vol-2"},
	}

	clone := src.Clone()
	clone["tags"].(map[string]interface{})["env"] = "staging"
	if src["tags"].(map[string]interface{})["env"] != "prod" {
		t.Error("clone must be deep")
	}

	if !src.Contains(Config{"instance_type": "m5.xlarge"}) {
		t.Error("expected subset match")
	}
	if src.Contains(Config{"instance_type": "t3.medium"}) {
		t.Error("expected value mismatch to fail")
	}
	if src.Contains(Config{"missing_key": "x"}) {
		t.Error("expected missing key to fail")
	}

	if !src.Equal(src.Clone()) {
		t.Error("expected clone to be equal")
	}
	if src.Equal(Config{"instance_type": "m5.xlarge"}) {
		t.Error("expected different sizes to be unequal")
	}
}
