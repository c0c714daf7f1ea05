package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in guardrail policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		requireOperatorPolicy(),
		destructiveRiskPolicy(),
		protectedResourcePolicy(),
		productionChangePolicy(),
		savingsSanityPolicy(),
		longExecutionPolicy(),
	}
}

// requireOperatorPolicy denies submissions that do not carry an accountable
// operator identity.
func requireOperatorPolicy() Policy {
	return Policy{
		Name:        "require-operator",
		Description: "Every execution must record who approved and submitted it",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"audit", "accountability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.operator

import rego.v1

deny contains violation if {
	not input.executed_by
	violation := {
		"message": "execution submitted without an operator identity",
		"severity": "critical",
		"resource": input.opportunity.resource_id,
	}
}

deny contains violation if {
	input.executed_by == ""
	violation := {
		"message": "execution submitted with an empty operator identity",
		"severity": "critical",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}

// destructiveRiskPolicy blocks destructive optimizations that carry high
// risk, and requires a change ticket for any other high-risk submission.
func destructiveRiskPolicy() Policy {
	return Policy{
		Name:        "destructive-risk",
		Description: "High-risk destructive optimizations are never executed unattended",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"risk", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.risk

import rego.v1

destructive_types := {"unused_resources", "spot_instances"}

deny contains violation if {
	destructive_types[input.opportunity.optimization_type]
	input.opportunity.risk_level == "high"
	violation := {
		"message": sprintf("high-risk %s optimization cannot be executed unattended", [input.opportunity.optimization_type]),
		"severity": "critical",
		"resource": input.opportunity.resource_id,
	}
}

deny contains violation if {
	input.opportunity.risk_level == "high"
	not destructive_types[input.opportunity.optimization_type]
	not input.opportunity.metadata.change_ticket
	violation := {
		"message": "high-risk optimization requires a change ticket in opportunity metadata",
		"severity": "error",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}

// protectedResourcePolicy denies changes to resources that are flagged as
// protected in their current configuration.
func protectedResourcePolicy() Policy {
	return Policy{
		Name:        "protected-resources",
		Description: "Resources flagged as protected are never modified",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.protected

import rego.v1

destructive_types := {"unused_resources", "spot_instances"}

deny contains violation if {
	input.current_config.protected == true
	violation := {
		"message": sprintf("resource %s is flagged as protected", [input.opportunity.resource_id]),
		"severity": "critical",
		"resource": input.opportunity.resource_id,
	}
}

deny contains violation if {
	destructive_types[input.opportunity.optimization_type]
	input.current_config.deletion_protection == true
	violation := {
		"message": "deletion protection is enabled; destructive optimization refused",
		"severity": "critical",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}

// productionChangePolicy requires a change ticket before destructive
// optimizations touch production resources.
func productionChangePolicy() Policy {
	return Policy{
		Name:        "production-change",
		Description: "Destructive changes to production resources need a change ticket",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"change-management"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.production

import rego.v1

destructive_types := {"unused_resources", "spot_instances"}

deny contains violation if {
	destructive_types[input.opportunity.optimization_type]
	input.opportunity.metadata.environment == "production"
	not input.opportunity.metadata.change_ticket
	violation := {
		"message": "destructive optimization on a production resource requires a change ticket",
		"severity": "error",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}

// savingsSanityPolicy rejects opportunities whose savings claims are
// inconsistent with the resource's recorded cost.
func savingsSanityPolicy() Policy {
	return Policy{
		Name:        "savings-sanity",
		Description: "Claimed savings must be positive and no larger than the current cost",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"finance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.savings

import rego.v1

deny contains violation if {
	input.opportunity.potential_savings <= 0
	violation := {
		"message": "opportunity claims no positive savings",
		"severity": "error",
		"resource": input.opportunity.resource_id,
	}
}

deny contains violation if {
	input.opportunity.current_cost > 0
	input.opportunity.potential_savings > input.opportunity.current_cost
	violation := {
		"message": sprintf("claimed savings %.2f exceed current cost %.2f", [input.opportunity.potential_savings, input.opportunity.current_cost]),
		"severity": "error",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}

// longExecutionPolicy warns when an opportunity estimates an unusually long
// execution window. The warning is logged but does not block admission.
func longExecutionPolicy() Policy {
	return Policy{
		Name:        "long-execution",
		Description: "Flag executions estimated to run longer than four hours",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"operations"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cloudtrim.guardrails.duration

import rego.v1

deny contains violation if {
	input.opportunity.estimated_execution_time > 240
	violation := {
		"message": sprintf("estimated execution time of %d minutes exceeds the four hour review threshold", [input.opportunity.estimated_execution_time]),
		"severity": "warning",
		"resource": input.opportunity.resource_id,
	}
}`,
	}
}
