package surfmatch_test

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/hupe1980/surfmatch"
	"github.com/hupe1980/surfmatch/blobstore"
	"github.com/hupe1980/surfmatch/catalog"
	"github.com/hupe1980/surfmatch/pose"
	"github.com/hupe1980/surfmatch/testutil"
)

// Example trains on the corners of a cube and finds the cube moved and
// turned in a scene.
func Example() {
	ctx := context.Background()
	cube := testutil.CubeCorners(2)

	model, err := surfmatch.Train(ctx, cube, 0.03)
	if err != nil {
		log.Fatal(err)
	}

	g := pose.FromAxisAngle(r3.Vec{Z: 1}, math.Pi/2)
	g.Translation = r3.Vec{X: 10}
	scene := surfmatch.Transform(g, cube)

	results, err := surfmatch.Match(ctx, model, scene, 0.03, 1, 0.9, 1)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("model points:", model.Points().Len())
	fmt.Printf("best score: %.2f\n", results[0].Score)
	// Output:
	// model points: 8
	// best score: 1.00
}

// Example_saveLoad demonstrates persisting a trained model to disk.
func Example_saveLoad() {
	ctx := context.Background()
	model, err := surfmatch.Train(ctx, testutil.HeightField(12, 3), 0.05)
	if err != nil {
		log.Fatal(err)
	}

	dir, err := os.MkdirTemp("", "surfmatch-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "field.ppf")
	if err := model.Save(ctx, path); err != nil {
		log.Fatal(err)
	}

	loaded, err := surfmatch.Load(ctx, path)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("same model:", loaded.ID() == model.ID())
	fmt.Println("same table:", loaded.NumEntries() == model.NumEntries())
	// Output:
	// same model: true
	// same table: true
}

// Example_catalog demonstrates publishing versions of a model to a blob
// store.
func Example_catalog() {
	ctx := context.Background()
	cat := catalog.New(blobstore.NewMemoryStore())

	model, err := surfmatch.Train(ctx, testutil.HeightField(12, 3), 0.05)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := model.Publish(ctx, cat, "field"); err != nil {
		log.Fatal(err)
	}
	if _, err := model.Publish(ctx, cat, "field"); err != nil {
		log.Fatal(err)
	}

	versions, err := cat.Versions(ctx, "field")
	if err != nil {
		log.Fatal(err)
	}
	fetched, _, err := surfmatch.Fetch(ctx, cat, "field")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("versions:", len(versions))
	fmt.Println("fetched:", fetched.ID() == model.ID())
	// Output:
	// versions: 2
	// fetched: true
}
