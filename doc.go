// Package surfmatch recognizes rigid 3D objects in point clouds by point pair
// feature surface matching.
//
// A model is trained once from an oriented point cloud of the object. Every
// ordered pair of sampled model points is described by a quantized four-value
// feature (distance, two normal angles, angle between normals) and stored in a
// hash table. Matching samples the scene, lets a subset of scene points vote
// for model correspondences and in-plane rotations, clusters the resulting
// pose hypotheses, and verifies the best clusters by how many model points
// land on scene surface.
//
// # Quick Start
//
//	ctx := context.Background()
//	points, _ := pointcloud.FromRecords(records) // x,y,z,nx,ny,nz per point
//	model, _ := surfmatch.Train(ctx, points, 0.05)
//
//	results, _ := surfmatch.Match(ctx, model, scene, 0.05, 0.2, 0.5, 3)
//	for _, r := range results {
//	    fmt.Println(r.Score, r.Matrix())
//	}
//
// Relative sampling distances are fractions of the model diameter, the
// diagonal of the training points' bounding box. The key point fraction
// selects the share of sampled scene points that vote. Results are ordered by
// score, best first; an empty result means the object was not found. An
// empty scene is rejected with ErrInvalidInput.
//
// # Persistence
//
// Trained models serialize to a checksummed, optionally compressed binary
// blob:
//
//	_ = model.Save(ctx, "part.ppf")
//	model, _ := surfmatch.Load(ctx, "part.ppf")
//
//	data, _ := model.MarshalBinary()
//
// Corrupt or truncated data is rejected with ErrCorruptModelData; no
// partially populated model is ever returned.
//
// # Model Catalog
//
// Models can be published under a name to a blob store (local disk, memory,
// S3 or MinIO) with immutable versions and an atomically updated pointer:
//
//	store, _ := s3.New(ctx, "models-bucket", s3.WithPrefix("prod/"))
//	cat := catalog.New(store)
//	_, _ = model.Publish(ctx, cat, "bracket")
//	model, _, _ := surfmatch.Fetch(ctx, cat, "bracket")
//
// # Concurrency
//
// Training and voting fan out over a bounded worker pool. Results do not
// depend on the number of workers. A trained Model is read-only and can
// serve concurrent Match calls.
//
//	rc := resource.NewController(resource.Config{MaxWorkers: 8})
//	results, _ := surfmatch.Match(ctx, model, scene, 0.05, 0.2, 0.5, 3,
//	    surfmatch.WithResourceController(rc))
//
// # Errors
//
// Errors match one of ErrInvalidInput, ErrUntrainedModel and
// ErrCorruptModelData with errors.Is. InvalidInputError names the rejected
// argument.
package surfmatch
