// Package schema defines the records exchanged between the goals backend and its clients.
//
// # Overview
//
// Every table served by the backend has a row type here (Goal, Subgoal, Folder,
// Notification, Share) together with the input and patch types used to create and
// modify it. Rows travel as JSON in REST responses and inside realtime ChangeEvents.
//
// # Ownership
//
// Rows carry the owning identity in a user_id column. The backend scopes every read
// and write to the caller's identity; clients use the same column to decide whether a
// realtime event concerns the signed-in user.
//
// # Progress
//
// A goal's progress is derived from its subgoals whenever it has any:
//
//	progress = round(100 * completed / total)
//
// It may only be set directly while the goal has no subgoals.
//
// # Goal Files
//
// Goals can also be described in files (json, toml or yaml) for bulk import:
//
//	title = "Run 5k"
//	description = "Couch to 5k plan"
//	target_date = "in 6 weeks"
//	tags = ["health"]
//	subgoals = ["Week 1", "Week 2"]
//
// See ReadGoalFile and ParseTargetDate.
package schema
