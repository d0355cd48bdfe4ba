// Package core provides the business logic for the daily CSV upload portal.
//
// The package holds all domain logic independent of the HTTP layer. It is
// used by the web handlers, by portalctl, and by tests with in-memory fakes
// for [Store] and [BlobStore].
//
// # Upload Flow
//
// A file travels through the portal in three steps:
//
//  1. The client validates the file with [Service.ValidateUpload]
//  2. [Service.IssueUploadURL] creates a PENDING session and returns a
//     short-lived write-only URL for the blob container
//  3. After the direct upload, [Service.CompleteUpload] downloads the blob,
//     re-validates it and marks the session UPLOADED or FAILED
//
// PENDING sessions that are never completed are expired by the session
// sweeper started with [Service.StartSessionSweeper].
//
// # Users
//
// Accounts carry one of three roles: USER, ADMIN and SUPERADMIN. Only
// administrators manage accounts. SUPERADMIN accounts are invisible to
// everyone else, and the "admin" account is protected.
//
// # Error Handling
//
// Expected failures are returned as [*Error] with a [Kind] that the web
// layer maps to a status code. Anything else is mapped to a user-facing
// message with a support code using [MapError]:
//
//   - DB001-DB007: Database errors (duplicates, connections, timeouts)
//   - STO001-STO003: Blob storage errors
//   - UPL001-UPL005: Upload errors (busy, expired, cancelled)
//   - AUTH001-AUTH002: Session errors
//
// # Audit Logging
//
// Logins, account changes and upload activity are recorded in the
// append-only audit log with a severity level:
//
//   - Low: Successful logins
//   - Medium: Upload URL issued, upload completed, account updates
//   - High: Failed logins, failed uploads, account creation and password resets
//   - Critical: Account deactivation and bulk upload deletion
package core
