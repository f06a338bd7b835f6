// Package queue maintains the durable, crash-resumable processing queue:
// work item records with construction-checked statuses, the priority
// heuristic, the processed-set deduplication authority, and a manager whose
// every mutation is persisted before it returns.
package queue
