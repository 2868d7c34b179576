// Package mutation implements the optimistic mutation protocol for one shared account.
//
// A Mutator reads the account snapshot through the cache, decides whether a debit is covered,
// and applies the signed delta with a version-guarded conditional update against the durable
// store. On a version conflict it invalidates the cache, waits according to its BackoffPolicy,
// and restarts from a fresh read. The loop ends only when the mutation is applied, rejected for
// insufficient funds, or a store/cache error occurs.
//
// Conflicts and insufficient funds are outcomes, not errors:
//
//	result, err := mutator.Mutate(ctx, accountID, decimal.NewFromInt(10), mutation.Debit)
//	if err != nil {
//		// store or cache failure
//	}
//	switch result.Outcome {
//	case mutation.Applied:
//	case mutation.InsufficientFunds:
//	}
package mutation
