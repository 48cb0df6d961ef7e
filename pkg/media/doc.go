// Package media implements the two-phase upload flow and the media index.
//
// Uploads are admitted by the quota gate, then the client PUTs the bytes directly to
// object storage with a presigned URL and calls Complete. Complete checks the stored
// object against the declared and admitted upload, records it, and adds its stored size
// to the team's usage. Objects that fail the check are deleted.
package media
