// Package policy decides whether an account should be locked.
//
// An account carries a policy configuration, a JSON object mapping policy
// names to parameters:
//
//	{"deviceTampering": {"score": 0.8}, "biometricAvailable": {}}
//
// The Evaluator runs every registered policy whose name appears in that
// configuration and reports the first one that failed. A name without a
// registered policy counts as a failure and is listed in
// Evaluation.Unrecognized.
//
//	evaluator, err := policy.NewEvaluator(
//	    policy.DeviceTamperingPolicy(detector),
//	    policy.Named("dummy", func(json.RawMessage) policy.Result {
//	        return policy.Result{Pass: true}
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eval := evaluator.Evaluate(account)
//	if !eval.Compliant {
//	    log.Printf("account violates %s", eval.NonCompliant.Name)
//	}
//
// Policies must be registered before the first evaluation; afterwards
// Register returns ErrRegistryFrozen.
package policy
