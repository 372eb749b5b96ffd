// Package storage keeps what branchwatch has already seen: the last build id
// and update time per branch, plus a history of detected changes. Drivers are
// "file" (snapshot + jsonl journal), "sqlite" and "memory".
package storage
