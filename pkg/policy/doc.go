// Package policy provides Open Policy Agent (OPA) guardrails for CloudTrim.
//
// This package evaluates Rego policies against execution submissions before
// an optimization is admitted into the pipeline. It includes built-in
// guardrails for common safety requirements and supports custom policy
// loading with hot reload.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined guardrails for common requirements
//
// # Usage
//
// Creating a guardrail engine and wiring it into the execution engine:
//
//	logger := zerolog.New(os.Stdout)
//	guard, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	exec, err := engine.New(engine.Options{
//	    Gateway: gateway,
//	    Store:   store,
//	    Guard:   guard,
//	    Logger:  logger,
//	})
//
// Evaluating a submission directly:
//
//	result, err := guard.EvaluateInput(ctx, engine.GuardInput{
//	    Opportunity:   opp,
//	    ExecutedBy:    "finops@example.com",
//	    CurrentConfig: current,
//	})
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/cloudtrim/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = guard.LoadPolicies(ctx, paths)
//
// # Built-in Policies
//
// The following guardrails are included by default:
//
//  1. require-operator - Every execution must record an operator identity
//  2. destructive-risk - High-risk destructive optimizations are denied
//  3. protected-resources - Resources flagged as protected are never modified
//  4. production-change - Destructive changes to production need a change ticket
//  5. savings-sanity - Claimed savings must be consistent with current cost
//  6. long-execution - Warns on executions estimated over four hours
//
// # Custom Policies
//
// Custom guardrails are written in Rego against the submission input, which
// carries the opportunity, the operator identity, and the resource's current
// configuration:
//
//	package custom.guardrails.regions
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.opportunity.region == "eu-central-1"
//	    violation := {
//	        "message": "optimizations are frozen in eu-central-1 during migration",
//	        "severity": "error",
//	        "resource": input.opportunity.resource_id,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that are logged but don't block admission
//   - error: Issues that block admission
//   - critical: Severe issues that block admission and must never be overridden
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return guard.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. Caching is
// implemented at both the loader and engine levels.
package policy
