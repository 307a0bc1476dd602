// Package check holds repository policy tests. They parse the module's own
// source and fail when a package breaks one of the boundary rules, so the
// rules survive refactors without a linter configuration.
package check
