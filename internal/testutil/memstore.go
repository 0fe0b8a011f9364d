// Package testutil provides an in-memory S3 fake and mocks for package tests.
package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MemoryStore is a single-process S3 fake covering the bucket, listing,
// delete and transfer calls used by this module.
//
// Keys list in lexicographic order and continuation tokens are opaque
// strings, like a real store. MemoryStore is safe for concurrent use so the
// transfer manager can upload parts in parallel.
type MemoryStore struct {
	// DeleteFault, when set, is consulted before each per-key delete
	// (DeleteObject and every entry of DeleteObjects). A non-nil error
	// leaves the object in place.
	DeleteFault func(bucket, key string) error

	// ListFault, when set, is consulted before each ListObjectsV2 call
	// with the 1-based call number.
	ListFault func(call int) error

	mu         sync.Mutex
	buckets    map[string]*memBucket
	uploads    map[string]*memUpload
	nextUpload int
	calls      map[string]int
	now        func() time.Time
}

type memBucket struct {
	created time.Time
	objects map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

type memUpload struct {
	bucket      string
	key         string
	contentType string
	parts       map[int32][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memBucket),
		uploads: make(map[string]*memUpload),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// Calls returns how many times op was invoked (e.g. "DeleteObjects").
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// AddBucket creates a bucket directly, bypassing call accounting.
func (m *MemoryStore) AddBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = &memBucket{created: m.now(), objects: make(map[string]memObject)}
	}
}

// AddObject stores an object directly, creating the bucket if needed.
func (m *MemoryStore) AddObject(bucket, key string, data []byte) {
	m.AddBucket(bucket)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket].objects[key] = m.newObject(data, "")
}

// ObjectKeys returns the keys currently stored in bucket, sorted.
func (m *MemoryStore) ObjectKeys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	return sortedKeys(b.objects, "")
}

// Object returns the content of an object and whether it exists.
func (m *MemoryStore) Object(bucket, key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, "", false
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, "", false
	}
	return slices.Clone(obj.data), obj.contentType, true
}

// HasBucket reports whether the bucket exists.
func (m *MemoryStore) HasBucket(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[name]
	return ok
}

func (m *MemoryStore) count(op string) int {
	m.calls[op]++
	return m.calls[op]
}

func (m *MemoryStore) newObject(data []byte, contentType string) memObject {
	sum := md5.Sum(data)
	return memObject{
		data:        data,
		contentType: contentType,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		modified:    m.now().UTC(),
	}
}

func (m *MemoryStore) bucket(name string) (*memBucket, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, &types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return b, nil
}

// CreateBucket implements the S3 CreateBucket call.
func (m *MemoryStore) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CreateBucket")

	name := aws.ToString(in.Bucket)
	if _, ok := m.buckets[name]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String("Your previous request to create the named bucket succeeded and you already own it.")}
	}
	m.buckets[name] = &memBucket{created: m.now(), objects: make(map[string]memObject)}
	return &s3.CreateBucketOutput{Location: aws.String("/" + name)}, nil
}

// DeleteBucket implements the S3 DeleteBucket call.
func (m *MemoryStore) DeleteBucket(_ context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("DeleteBucket")

	name := aws.ToString(in.Bucket)
	b, err := m.bucket(name)
	if err != nil {
		return nil, err
	}
	if len(b.objects) > 0 {
		return nil, &smithy.GenericAPIError{Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty"}
	}
	delete(m.buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}

// HeadBucket implements the S3 HeadBucket call.
func (m *MemoryStore) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("HeadBucket")

	if _, ok := m.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

// ListBuckets implements the S3 ListBuckets call with MaxBuckets pagination.
func (m *MemoryStore) ListBuckets(_ context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("ListBuckets")

	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	if token := aws.ToString(in.ContinuationToken); token != "" {
		idx := sort.SearchStrings(names, token)
		for idx < len(names) && names[idx] <= token {
			idx++
		}
		names = names[idx:]
	}

	out := &s3.ListBucketsOutput{}
	limit := int(aws.ToInt32(in.MaxBuckets))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
		out.ContinuationToken = aws.String(names[len(names)-1])
	}
	for _, name := range names {
		out.Buckets = append(out.Buckets, types.Bucket{
			Name:         aws.String(name),
			CreationDate: aws.Time(m.buckets[name].created),
		})
	}
	return out, nil
}

// PutObject implements the S3 PutObject call.
func (m *MemoryStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("PutObject")

	b, err := m.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	obj := m.newObject(data, aws.ToString(in.ContentType))
	b.objects[aws.ToString(in.Key)] = obj
	return &s3.PutObjectOutput{ETag: aws.String(obj.etag)}, nil
}

// GetObject implements the S3 GetObject call, honouring single byte ranges.
func (m *MemoryStore) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("GetObject")

	b, err := m.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	total := int64(len(obj.data))
	out := &s3.GetObjectOutput{
		ETag:         aws.String(obj.etag),
		ContentType:  aws.String(obj.contentType),
		LastModified: aws.Time(obj.modified),
	}

	rng := aws.ToString(in.Range)
	if rng == "" || total == 0 {
		out.Body = io.NopCloser(bytes.NewReader(slices.Clone(obj.data)))
		out.ContentLength = aws.Int64(total)
		return out, nil
	}

	var start, end int64
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "unsupported range " + rng}
	}
	if start >= total {
		return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "The requested range is not satisfiable"}
	}
	if end >= total {
		end = total - 1
	}
	part := slices.Clone(obj.data[start : end+1])
	out.Body = io.NopCloser(bytes.NewReader(part))
	out.ContentLength = aws.Int64(int64(len(part)))
	out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	return out, nil
}

// ListObjectsV2 implements the S3 ListObjectsV2 call.
func (m *MemoryStore) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.count("ListObjectsV2")

	if m.ListFault != nil {
		if err := m.ListFault(call); err != nil {
			return nil, err
		}
	}

	b, err := m.bucket(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}

	keys := sortedKeys(b.objects, aws.ToString(in.Prefix))
	after := aws.ToString(in.StartAfter)
	if token := aws.ToString(in.ContinuationToken); token != "" {
		after = strings.TrimPrefix(token, "next:")
	}
	if after != "" {
		idx := sort.SearchStrings(keys, after)
		for idx < len(keys) && keys[idx] <= after {
			idx++
		}
		keys = keys[idx:]
	}

	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}

	out := &s3.ListObjectsV2Output{
		Name:              in.Bucket,
		Prefix:            in.Prefix,
		ContinuationToken: in.ContinuationToken,
		IsTruncated:       aws.Bool(false),
	}
	if len(keys) > limit {
		keys = keys[:limit]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next:" + keys[len(keys)-1])
	}
	for _, key := range keys {
		obj := b.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			ETag:         aws.String(obj.etag),
			LastModified: aws.Time(obj.modified),
			StorageClass: types.ObjectStorageClassStandard,
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

// DeleteObject implements the S3 DeleteObject call.
func (m *MemoryStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("DeleteObject")

	bucket, key := aws.ToString(in.Bucket), aws.ToString(in.Key)
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if m.DeleteFault != nil {
		if err := m.DeleteFault(bucket, key); err != nil {
			return nil, err
		}
	}
	delete(b.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

// DeleteObjects implements the S3 multi-object delete call.
func (m *MemoryStore) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("DeleteObjects")

	bucket := aws.ToString(in.Bucket)
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if in.Delete == nil || len(in.Delete.Objects) == 0 {
		return nil, &smithy.GenericAPIError{Code: "MalformedXML", Message: "The XML you provided was not well-formed"}
	}
	if len(in.Delete.Objects) > 1000 {
		return nil, &smithy.GenericAPIError{Code: "MalformedXML", Message: "too many keys"}
	}

	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		key := aws.ToString(id.Key)
		if m.DeleteFault != nil {
			if err := m.DeleteFault(bucket, key); err != nil {
				out.Errors = append(out.Errors, types.Error{
					Key:     aws.String(key),
					Code:    aws.String(errorCode(err)),
					Message: aws.String(err.Error()),
				})
				continue
			}
		}
		delete(b.objects, key)
		if !aws.ToBool(in.Delete.Quiet) {
			out.Deleted = append(out.Deleted, types.DeletedObject{Key: aws.String(key)})
		}
	}
	return out, nil
}

// CreateMultipartUpload implements the S3 CreateMultipartUpload call.
func (m *MemoryStore) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CreateMultipartUpload")

	if _, err := m.bucket(aws.ToString(in.Bucket)); err != nil {
		return nil, err
	}
	m.nextUpload++
	id := fmt.Sprintf("upload-%d", m.nextUpload)
	m.uploads[id] = &memUpload{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		parts:       make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{
		Bucket:   in.Bucket,
		Key:      in.Key,
		UploadId: aws.String(id),
	}, nil
}

// UploadPart implements the S3 UploadPart call.
func (m *MemoryStore) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("UploadPart")

	up, ok := m.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	up.parts[aws.ToInt32(in.PartNumber)] = data
	sum := md5.Sum(data)
	return &s3.UploadPartOutput{ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)}, nil
}

// CompleteMultipartUpload implements the S3 CompleteMultipartUpload call.
func (m *MemoryStore) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CompleteMultipartUpload")

	id := aws.ToString(in.UploadId)
	up, ok := m.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	b, err := m.bucket(up.bucket)
	if err != nil {
		return nil, err
	}

	var numbers []int32
	if in.MultipartUpload != nil {
		for _, part := range in.MultipartUpload.Parts {
			numbers = append(numbers, aws.ToInt32(part.PartNumber))
		}
	}
	slices.Sort(numbers)

	var buf bytes.Buffer
	for _, n := range numbers {
		data, ok := up.parts[n]
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "InvalidPart", Message: fmt.Sprintf("part %d was not uploaded", n)}
		}
		buf.Write(data)
	}

	obj := m.newObject(buf.Bytes(), up.contentType)
	b.objects[up.key] = obj
	delete(m.uploads, id)
	return &s3.CompleteMultipartUploadOutput{
		Bucket: aws.String(up.bucket),
		Key:    aws.String(up.key),
		ETag:   aws.String(obj.etag),
	}, nil
}

// AbortMultipartUpload implements the S3 AbortMultipartUpload call.
func (m *MemoryStore) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("AbortMultipartUpload")

	delete(m.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func sortedKeys(objects map[string]memObject, prefix string) []string {
	keys := make([]string, 0, len(objects))
	for key := range objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func errorCode(err error) string {
	if apiErr, ok := err.(smithy.APIError); ok {
		return apiErr.ErrorCode()
	}
	return "InternalError"
}
