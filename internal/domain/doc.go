// Package domain defines the shared types and contracts of task-streamer:
// the Taskwarrior task record, the topic label, the notification events sent
// to viewers, and the interfaces the mutation boundary depends on.
//
// No implementation code lives here beyond validation and JSON shape.
package domain
