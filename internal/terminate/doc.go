// Package terminate ends processes using the host's administrative kill
// facility, never through an application's own shutdown dialogs.
//
// Two strategies exist and one is compiled in per OS family. On unix the
// signal strategy sends SIGTERM (graceful) or SIGKILL (forced) to the process
// group when the target leads one, and additionally walks the descendant tree
// before a forced kill so children that left the group are not orphaned. On
// windows the taskkill strategy uses "taskkill /T" (graceful) and
// "taskkill /F /T" (forced), which ends the whole task tree.
//
// Both strategies are idempotent: a target that no longer exists is a
// successful no-op.
package terminate
