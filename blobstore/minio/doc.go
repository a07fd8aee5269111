// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible servers such as Ceph,
// SeaweedFS and Garage, without the AWS SDK.
//
// # Basic Usage
//
//	store, err := minio.Connect(ctx, minio.Config{
//	    Endpoint:     "localhost:9000",
//	    AccessKey:    "minioadmin",
//	    SecretKey:    "minioadmin",
//	    Bucket:       "models",
//	    CreateBucket: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cat := catalog.New(store)
//
// An existing client can be wrapped directly:
//
//	store := minio.NewStore(client, "my-bucket", "surfmatch/")
package minio
