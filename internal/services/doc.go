// Package services defines the shared error taxonomy and context annotations
// used across pipeline phases.
//
// External collaborators (remote storage, extraction, tagging, upload) return
// arbitrary error shapes; phase workers wrap them with one of the sentinel
// markers here so the retry classifier and the orchestrator never branch on
// untyped errors. Context helpers carry archive/item identifiers and
// correlation IDs into structured logs.
package services
