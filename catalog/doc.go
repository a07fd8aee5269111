// Package catalog is a named, versioned registry of trained models stored in
// a blobstore.BlobStore.
//
// Layout:
//
//	models/<name>/<version>.ppf   encoded model (persistence format)
//	models/<name>/CURRENT         version string of the live model
//
// Versions are time-ordered UUIDs (v7), so lexical order is publish order.
// Publish writes the model blob first and then moves CURRENT, so readers
// never observe a pointer to a missing blob. With s3.DDBCommitStore the
// pointer update is a conditional DynamoDB write.
package catalog
