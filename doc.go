// Package blobclient is a client for block-based remote blob storage.
//
// It provides two engines over one wire transport. The chunked transfer
// engine splits uploads into blocks, stages them with bounded parallelism
// and optional MD5/CRC64 checksums, and commits an ordered block manifest
// in a single atomic call; downloads parallelize across ranged requests
// pinned to one blob version. The batch engine packs independent
// sub-operations (deletes, tier changes) into one multipart request and
// demultiplexes the per-operation outcomes, reporting partial failure
// through a single aggregate error that carries both the success and the
// failure lists.
//
// Basic usage:
//
//	client, err := blobclient.New("https://acct.blob.example.net", cred)
//	if err != nil {
//	    return err
//	}
//
//	result, err := client.UploadFile(ctx, "backups", "db.dump", "/var/backups/db.dump",
//	    blobclient.WithChecksum(blobtypes.ChecksumMD5),
//	    blobclient.WithUploadConcurrency(4),
//	)
//
// Errors wrap sentinel values from the errors subpackage, so callers can
// classify failures with errors.Is or the provided helpers:
//
//	if blobclienterrors.IsBlobNotFound(err) {
//	    // handle missing blob
//	}
package blobclient
