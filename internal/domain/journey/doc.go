// Package journey is the core of the engine: answers, derived progress and
// badge unlocking for a child moving through the content catalog.
//
// The package defines:
//
//   - Entities: Answer, Grant
//   - Derived values: ModuleProgress, Overall, Snapshot
//   - Services: ProgressCalculator, AchievementEngine
//   - Repository ports: AnswerRepository, GrantRepository, Store
//
// # Source of truth
//
// Only answers and grants are stored. Progress, the current module and the next
// module are recomputed from (catalog, answers) on every read; any cache of
// them is a projection that may be dropped at any time.
//
// # Answers
//
// An answer is keyed by (child, question). Saving the same selection twice
// leaves one row; saving a different option replaces the previous one.
// Concurrent writers are not serialized, the last write wins:
//
//	a, err := journey.NewAnswer(childID, question, "sim", now)
//	err = answers.Upsert(ctx, a)
//
// # Badges
//
// Grants only grow. AchievementEngine.Evaluate is a pure function of the
// snapshot and the existing grants; the caller stores each returned badge with
// GrantRepository.InsertIfAbsent, which ignores a grant that another writer
// already inserted:
//
//	snap := calc.Snapshot(childID, history)
//	for _, b := range engine.Evaluate(snap, journey.GrantSet(grants)) {
//	    inserted, err := grants.InsertIfAbsent(ctx, journey.Grant{ChildID: childID, BadgeID: b.ID, UnlockedAt: now})
//	    ...
//	}
package journey
