// Package provider defines the shared types and error taxonomy for object
// storage operations.
//
// Implementations are thin: the backing SDK owns the wire protocol, retries,
// authentication and multipart chunking. This package only describes what
// comes back from a store and how failures are classified.
package provider

import (
	"time"
)

// ListOptions configures a paginated object listing.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// StartToken resumes listing from a token returned by an earlier pager.
	// Empty string starts from the beginning.
	StartToken string

	// PageSize limits the number of objects requested per round-trip.
	// Zero uses the default (1000). Values over 1000 are clamped.
	PageSize int

	// Match is an optional doublestar glob applied to keys after listing.
	// Empty string keeps every key.
	Match string
}

// ObjectSummary contains the store-reported metadata for a listed object.
type ObjectSummary struct {
	// Key is the full object key in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time

	// StorageClass is the store-reported storage class, if any.
	StorageClass string
}

// Page is one non-empty batch of objects from a single listing round-trip.
type Page struct {
	// Objects holds the objects of this page in store order.
	Objects []ObjectSummary

	// NextToken resumes listing immediately after this page.
	// Empty string means this was the last page.
	NextToken string
}

// Keys returns the object keys of the page in order.
func (p Page) Keys() []string {
	keys := make([]string, len(p.Objects))
	for i, obj := range p.Objects {
		keys[i] = obj.Key
	}
	return keys
}

// Len returns the number of objects in the page.
func (p Page) Len() int {
	return len(p.Objects)
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
