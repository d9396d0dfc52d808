package common

// SyncTag is the background-sync tag that asks for an outbox resync.
const SyncTag = "sync-rsvp"

// PeriodicUpdateTag is the periodic-sync tag that refreshes cached content.
const PeriodicUpdateTag = "update-content"

// IdempotencyHeaderName carries the submission id on outbound deliveries.
const IdempotencyHeaderName = "X-Idempotency-Key"

// SubmissionIDField is the payload field holding the submission id.
const SubmissionIDField = "submission_id"

// OutboxKeySalt salts the Argon2id derivation of the outbox payload key.
const OutboxKeySalt = "boda-outbox"
