// Package filedb is the file-based record database: one append-only record
// log per entity type (users.bin, posts.bin, totems.bin) in a single
// directory.
//
// DB is the synchronous layer. Writes normalize and validate each record,
// encode it with package codec and append the batch with one sync. Reads are
// linear scans from the start of a log; ScanUsers, ScanPosts and ScanTotems
// filter on the decoded record and map only the records they keep.
//
// Repository adapts DB to model.Repository. It runs every call on a
// dedicated worker and adds the checks a keyed store would give for free:
// unique ids and existing post references. Both cost a full scan.
package filedb
