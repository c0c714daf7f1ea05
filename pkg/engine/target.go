package engine

// BuildTargetConfig derives the desired post-change configuration for an
// opportunity. It starts from a copy of the current configuration, applies
// per-type defaults, then overlays the discovery recommendation so explicit
// recommendations always win.
func BuildTargetConfig(current Config, opp *Opportunity) Config {
	target := current.Clone()
	if target == nil {
		target = Config{}
	}

	switch opp.OptimizationType {
	case OptimizationRightsizing:
		// The recommendation carries the new instance type; nothing to
		// default beyond the overlay below.

	case OptimizationScheduling:
		target["scheduling_enabled"] = true
		target["schedule"] = map[string]interface{}{
			"start_cron": "0 8 * * 1-5",
			"stop_cron":  "0 18 * * 1-5",
			"timezone":   "UTC",
		}

	case OptimizationUnusedResources:
		target["state"] = "terminated"

	case OptimizationStorage:
		if _, ok := opp.Recommendation["storage_class"]; !ok {
			target["storage_class"] = defaultStorageClass(opp.Provider)
		}

	case OptimizationReservedInstances:
		target["pricing_model"] = "reserved"
		if _, ok := opp.Recommendation["reservation_term"]; !ok {
			target["reservation_term"] = "1yr"
		}

	case OptimizationSpotInstances:
		target["lifecycle"] = "spot"
	}

	for k, v := range opp.Recommendation {
		target[k] = deepCopyValue(v)
	}
	return target
}

// defaultStorageClass returns the provider's cheaper infrequent-access tier
// used when the recommendation does not name a storage class.
func defaultStorageClass(p CloudProvider) string {
	switch p {
	case ProviderAzure:
		return "Cool"
	case ProviderGCP:
		return "NEARLINE"
	default:
		return "STANDARD_IA"
	}
}

// verificationTarget returns the subset of the target configuration that the
// Verification phase checks against the live resource. Bookkeeping keys that
// providers do not echo back are excluded.
func verificationTarget(target Config) Config {
	out := target.Clone()
	delete(out, "scheduling_enabled")
	return out
}
