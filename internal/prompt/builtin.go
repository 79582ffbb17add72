package prompt

import (
	"fmt"
	"os"
	"path/filepath"
)

// builtinTasks maps task file names to their default contents.
var builtinTasks = map[string]string{
	"plan.md":     planTask,
	"backend.md":  backendTask,
	"frontend.md": frontendTask,
	"tests.md":    testsTask,
	"review.md":   reviewTask,
	"refine.md":   refineTask,
	"compound.md": compoundTask,
}

// Scaffold writes the built-in task templates into dir, plus a generic
// implementation template for any role without a built-in one.
// Existing files are never overwritten: operators own tasks/ once it
// exists.
func Scaffold(dir string, roles []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	write := func(name, content string) error {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write template %q: %w", name, err)
		}
		return nil
	}

	for name, content := range builtinTasks {
		if err := write(name, content); err != nil {
			return err
		}
	}
	for _, role := range roles {
		if err := write(role+".md", implementTask); err != nil {
			return err
		}
	}
	return nil
}

const planTask = `# Plan: {{feature}}

> **Do not invoke any skills or slash commands.** Use only built-in tools.

Draft the implementation plan for the feature above and write it to
` + "`.workflow/PLAN.md`" + `. The first H1 line of that file becomes the
feature branch name, so keep it short and descriptive.

## Instructions
1. Read the existing code that the feature touches before writing anything
2. Split the work across the implementation roles: {{roles}}
3. For every boundary two roles share, write the exact interface into
   ` + "`.workflow/contracts/`" + ` (request/response shapes, function
   signatures, table columns) so they can build against it independently
4. List concrete acceptance criteria per role
5. Call out risks and the order in which shared pieces must land

Do not start implementing. The operator reviews and approves the plan
before any implementation work is dispatched.
`

const implementTask = `# Implement: {{role}}

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The approved plan is in ` + "`.workflow/PLAN.md`" + `. Read it in full, then
do the {{role}} portion.
{{#if scope}}

## Scope
Stay inside these paths; other roles own the rest of the tree:
{{scope}}
{{/if}}

## Instructions
1. Read the plan section for {{role}} and every contract in
   ` + "`.workflow/contracts/`" + ` that names it
2. Implement against the contracts exactly. If a contract is wrong,
   fix the contract file first so the other roles see the change
3. Write or update tests for your changes
4. Run the tests you touched and make them pass
`

const backendTask = `# Implement: backend

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The approved plan is in ` + "`.workflow/PLAN.md`" + `. Read it in full, then
do the backend portion: server-side logic, storage, and the API surface.
{{#if scope}}

## Scope
Stay inside these paths; other roles own the rest of the tree:
{{scope}}
{{/if}}

## Instructions
1. Read the plan's backend section and every contract in
   ` + "`.workflow/contracts/`" + ` that names the API
2. Implement endpoints and storage against the contracts exactly. If a
   contract is wrong, fix the contract file first so frontend and tests
   see the change
3. Handle the failure paths, not just the happy path
4. Write or update unit tests alongside the code and make them pass
`

const frontendTask = `# Implement: frontend

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The approved plan is in ` + "`.workflow/PLAN.md`" + `. Read it in full, then
do the frontend portion: UI, client state, and calls into the API.
{{#if scope}}

## Scope
Stay inside these paths; other roles own the rest of the tree:
{{scope}}
{{/if}}

## Instructions
1. Read the plan's frontend section and the API contracts in
   ` + "`.workflow/contracts/`" + `. Build against the contract, not
   against whatever the backend happens to expose right now
2. Cover loading, empty, and error states, not just the success path
3. Write or update component tests and make them pass
`

const testsTask = `# Implement: tests

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The approved plan is in ` + "`.workflow/PLAN.md`" + `. Read it in full, then
build the integration test coverage for the feature.
{{#if scope}}

## Scope
Stay inside these paths; other roles own the rest of the tree:
{{scope}}
{{/if}}

## Instructions
1. Derive test cases from the plan's acceptance criteria and the
   contracts in ` + "`.workflow/contracts/`" + `. Test the contract, not
   the implementation details
2. Exercise the feature end to end where the repo's tooling allows it
3. Include the edge cases the plan calls out, plus empty inputs, bad
   inputs, and concurrent use where it matters
4. Make the suite pass against the current tree; a test that fails
   because another role has not finished yet should be marked clearly
`

const reviewTask = `# Review

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

All implementation roles report complete. Review the combined result
against ` + "`.workflow/PLAN.md`" + ` and write your findings to
` + "`.workflow/REVIEW.md`" + `.
{{#if iteration}}

This is re-review {{iteration}}. Previous reviews are under
` + "`.workflow/archive/`" + `. Verify every issue raised there is actually
resolved before passing.
{{/if}}

## Instructions
1. Read every changed file in full, not just the diff. Assume the
   implementation is wrong until proven otherwise
2. Check each acceptance criterion in the plan and find the exact code
   path that satisfies it; if you cannot point to it, it is not done
3. Check the contracts in ` + "`.workflow/contracts/`" + ` against what was
   actually built on both sides of each boundary
4. Do not trust the tests: look for untested inputs, swallowed errors,
   and happy-path-only coverage
{{#if checks}}
5. Run each of these and include failures in your findings:
{{checks}}
{{/if}}

## Report format
` + "`.workflow/REVIEW.md`" + ` must contain exactly one verdict line:

    STATUS: PASS

or

    STATUS: FAIL

On FAIL, list every unresolved issue as an unchecked task item under an
` + "`## Issues`" + ` heading:

    - [ ] description of the problem, with file and line

The orchestrator reads the verdict and the unchecked items verbatim; a
report without a STATUS line is treated as not yet delivered.
`

const refineTask = `# Refine: {{role}}

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The review failed. This is refine iteration {{iteration}}. Fix the
issues below that fall in the {{role}} area; other roles are fixing
theirs in parallel.

## Issues
{{issues}}

## Instructions
1. Read ` + "`.workflow/REVIEW.md`" + ` for the full findings and decide
   which issues are yours; when ownership is unclear, fix rather than skip
2. Fix each issue properly, without suppressions or deleted tests
3. Re-run the tests covering what you changed
4. Do not start new work outside the review findings
`

const compoundTask = `# Compound

> **Do not invoke any skills or slash commands.** Use only built-in tools.

## Feature
{{feature}}

The review passed. Before this feature ships, fold what was learned
back into the repo so the next feature starts smarter.

## Instructions
1. Read ` + "`.workflow/PLAN.md`" + `, the archived reviews under
   ` + "`.workflow/archive/`" + `, and the final diff
2. Update ` + "`.workflow/contracts/`" + ` to match what was actually built
3. Record recurring review findings as concrete guidance in the repo's
   contributor docs (conventions, gotchas, testing patterns)
4. Delete guidance that this feature proved wrong or obsolete
`
