// Package s3 provides Amazon S3 implementations of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("surfmatch/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	cat := catalog.New(store)
//
// For concurrent publishers wrap the store so CURRENT pointers are committed
// through DynamoDB:
//
//	committed := s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg),
//	    "surfmatch-commits", "s3://my-bucket/surfmatch")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
