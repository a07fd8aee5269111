package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/surfmatch/blobstore"
)

// CurrentName is the base name of pointer blobs that DDBCommitStore keeps
// in DynamoDB instead of S3.
const CurrentName = "CURRENT"

// DDBCommitStore implements blobstore.BlobStore backed by S3 with DynamoDB
// for atomic pointer commits. This enables safe concurrent publishers.
//
// Every blob whose base name is CURRENT is a pointer. Writing a pointer
// appends a new version with a conditional put, so two writers racing on
// the same pointer cannot both win. Reading returns the latest version.
// All other blobs pass through to S3.
//
// Table schema:
//   - Partition key: base_uri (string) - baseURI plus the pointer directory
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name surfmatch-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   blobstore.BlobStore
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a new S3+DynamoDB commit store.
// The baseURI should be "s3://bucket/prefix"; it namespaces the partition keys.
func NewDDBCommitStore(s3Store blobstore.BlobStore, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

func isPointer(name string) bool {
	return path.Base(name) == CurrentName
}

func (s *DDBCommitStore) partition(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return s.baseURI
	}
	return s.baseURI + "|" + dir
}

// Open opens a blob for reading. Pointers resolve to their latest version.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if !isPointer(name) {
		return s.s3Store.Open(ctx, name)
	}
	version, target, err := s.latest(ctx, s.partition(name))
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &pointerBlob{content: []byte(target)}, nil
}

// Put writes a blob. Pointers are committed with a conditional write.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if isPointer(name) {
		return s.commit(ctx, s.partition(name), string(data))
	}
	return s.s3Store.Put(ctx, name, data)
}

// Create creates a writable blob. Pointers must be written with Put.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if isPointer(name) {
		return nil, fmt.Errorf("s3: %s must be written with Put", name)
	}
	return s.s3Store.Create(ctx, name)
}

// Delete deletes a blob. Deleting a pointer removes its whole history.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if !isPointer(name) {
		return s.s3Store.Delete(ctx, name)
	}
	partition := s.partition(name)
	versions, err := s.versions(ctx, partition)
	if err != nil {
		return err
	}
	for _, v := range versions {
		_, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"base_uri": &types.AttributeValueMemberS{Value: partition},
				"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(v, 10)},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete version %d from DynamoDB: %w", v, err)
		}
	}
	return nil
}

// List lists S3 blobs with prefix. Pointers are not listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.s3Store.List(ctx, prefix)
}

func (s *DDBCommitStore) query(ctx context.Context, partition string, limit *int32, startKey map[string]types.AttributeValue) (*dynamodb.QueryOutput, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: partition},
		},
		ScanIndexForward:  aws.Bool(false), // Descending order
		Limit:             limit,
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	return resp, nil
}

// latest returns the latest committed version and its target.
func (s *DDBCommitStore) latest(ctx context.Context, partition string) (uint64, string, error) {
	resp, err := s.query(ctx, partition, aws.Int32(1), nil)
	if err != nil {
		return 0, "", err
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	version, err := parseVersion(item)
	if err != nil {
		return 0, "", err
	}
	target, ok := item["target"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid target attribute in DynamoDB")
	}
	return version, target.Value, nil
}

func (s *DDBCommitStore) versions(ctx context.Context, partition string) ([]uint64, error) {
	var (
		out      []uint64
		startKey map[string]types.AttributeValue
	)
	for {
		resp, err := s.query(ctx, partition, nil, startKey)
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			v, err := parseVersion(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func parseVersion(item map[string]types.AttributeValue) (uint64, error) {
	attr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("invalid version attribute in DynamoDB")
	}
	v, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	return v, nil
}

// commit appends target as the next version of the pointer.
func (s *DDBCommitStore) commit(ctx context.Context, partition, target string) error {
	current, _, err := s.latest(ctx, partition)
	if err != nil {
		return err
	}

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: partition},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"target":   &types.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

// pointerBlob is an in-memory blob holding a pointer target.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error {
	return nil
}

func (b *pointerBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *pointerBlob) Bytes() ([]byte, error) {
	return b.content, nil
}

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *pointerBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return nil, io.EOF
	}
	end := min(off+length, int64(len(b.content)))
	return blobstore.NopReadCloser(bytes.NewReader(b.content[off:end])), nil
}
