package types

import (
	"time"

	"github.com/nexi-lab/nexuskernel/internal/config"
)

// VirtualPath is a POSIX-style path inside a zone's namespace. Paths are
// always absolute ("/a/b/c"), use "/" as separator, and never contain "."
// or ".." segments — ValidatePath rejects both.
type VirtualPath string

// FileMetadata is the metadata record the kernel stores per path: owner,
// mode, size, and the timestamps POSIX tools expect, plus the pointer to
// the content object backing the current version.
type FileMetadata struct {
	Path         VirtualPath       `json:"path"`
	Zone         string            `json:"zone"`
	Size         int64             `json:"size"`
	Mode         uint32            `json:"mode"`
	OwnerSubject string            `json:"owner_subject"`
	GroupID      string            `json:"group_id"`
	IsDir        bool              `json:"is_dir"`
	ContentHash  string            `json:"content_hash,omitempty"`
	ETag         string            `json:"etag"`
	Version      int64             `json:"version"`
	CreateTime   time.Time         `json:"create_time"`
	ModifyTime   time.Time         `json:"modify_time"`
	AccessTime   time.Time         `json:"access_time"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// ContentObject is a content-addressed blob: its Hash is the SHA-256 of
// Data and doubles as the CAS key.
type ContentObject struct {
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	Data      []byte    `json:"-"`
	StoredAt  time.Time `json:"stored_at"`
	TierHint  string    `json:"tier_hint,omitempty"`
	RefCount  int64     `json:"ref_count"`
}

// Pointer is the small, atomically-written file recorded at a path's
// blob-tree location: "cas:<hash>\n". It never contains the blob itself.
type Pointer struct {
	ContentHash string `json:"content_hash"`
}

func (p Pointer) String() string { return "cas:" + p.ContentHash + "\n" }

// ReBACTuple is a single relationship: subject bears Relation to Resource.
// A subject may itself be a userset ("group:eng#member") for indirection.
type ReBACTuple struct {
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Relation     string    `json:"relation"`
	Subject      string    `json:"subject"`
	Zone         string    `json:"zone"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	// SubjectTenant/ObjectTenant are compared on write: a write is
	// rejected unless they match, or both are empty.
	SubjectTenant string `json:"subject_tenant,omitempty"`
	ObjectTenant  string `json:"object_tenant,omitempty"`
}

// RewriteKind is the kind of rewrite rule a namespace relation uses.
type RewriteKind string

const (
	RewriteDirect         RewriteKind = "direct"
	RewriteUnion          RewriteKind = "union"
	RewriteTupleToUserset RewriteKind = "tuple_to_userset"
)

// RelationDef defines how a single relation on a resource type is
// evaluated: directly assigned, a union of other relations, or derived by
// following a tuple to another resource's userset.
type RelationDef struct {
	Name            string      `json:"name" yaml:"name"`
	Kind            RewriteKind `json:"kind" yaml:"kind"`
	Union           []string    `json:"union,omitempty" yaml:"union,omitempty"`
	Tupleset        string      `json:"tupleset,omitempty" yaml:"tupleset,omitempty"`
	ComputedUserset string      `json:"computed_userset,omitempty" yaml:"computed_userset,omitempty"`
}

// NamespaceSchema is the set of relation definitions for one resource type.
type NamespaceSchema struct {
	ResourceType string                 `json:"resource_type" yaml:"resource_type"`
	Relations    map[string]RelationDef `json:"relations" yaml:"relations"`
}

// VersionRecord is one entry in a path's version history.
type VersionRecord struct {
	Path        VirtualPath `json:"path"`
	Version     int64       `json:"version"`
	ContentHash string      `json:"content_hash"`
	Size        int64       `json:"size"`
	Author      string      `json:"author"`
	Comment     string      `json:"comment,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ReadSetEntry records that a query observed a given path/directory/zone
// dependency, so a later write can invalidate exactly the queries that
// read it.
type ReadSetEntry struct {
	QueryID        string    `json:"query_id"`
	Paths          []string  `json:"paths,omitempty"`
	DirectoryPrefixes []string `json:"directory_prefixes,omitempty"`
	Zones          []string  `json:"zones,omitempty"`
	RegisteredAt   time.Time `json:"registered_at"`
	TTL            time.Duration `json:"ttl"`
}

// MemoryEntry is a Memory API record: a file-backed, bitemporal note an
// agent can Put/Get/Search, subject to the same ReBAC rules as any path.
type MemoryEntry struct {
	Path       VirtualPath `json:"path"`
	Zone       string      `json:"zone"`
	Subject    string      `json:"subject"`
	Content    string      `json:"content"`
	Tags       []string    `json:"tags,omitempty"`
	ValidFrom  time.Time   `json:"valid_from"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
	Version    int64       `json:"version"`
}

// ExpansionStatus is the lifecycle state of a DirectoryGrantRecord's
// background descendant walk.
type ExpansionStatus string

const (
	ExpansionPending   ExpansionStatus = "pending"
	ExpansionRunning   ExpansionStatus = "running"
	ExpansionCompleted ExpansionStatus = "completed"
	ExpansionFailed    ExpansionStatus = "failed"
)

// DirectoryGrantRecord pre-materializes a ReBAC grant over every path
// under Prefix, so `check` on a deep descendant doesn't need to walk back
// up to an ancestor tuple at request time.
type DirectoryGrantRecord struct {
	Prefix         string          `json:"prefix"`
	Zone           string          `json:"zone"`
	Relation       string          `json:"relation"`
	Subject        string          `json:"subject"`
	ResourceType   string          `json:"resource_type"`
	ExpansionStatus ExpansionStatus `json:"expansion_status"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
}

// EventType is the kind of change a wait_for_changes caller can observe.
type EventType string

const (
	EventFileWrite  EventType = "file_write"
	EventFileDelete EventType = "file_delete"
	EventDirCreate  EventType = "dir_create"
	EventDirDelete  EventType = "dir_delete"
	EventFileRename EventType = "file_rename"
)

// Event is a single change notification, delivered by either the
// distributed or same-box event track. Revision is monotonic per
// (Zone, Path); cross-path ordering is best-effort.
type Event struct {
	Type     EventType `json:"type"`
	Path     string    `json:"path"`
	OldPath  string    `json:"old_path,omitempty"`
	Revision uint64    `json:"revision"`
	Zone     string    `json:"zone"`
}

// StorageTierHint guides the CAS GC/placement policy: objects with no
// recent reference can be demoted to a colder tier before eventual
// deletion.
type StorageTierHint string

const (
	TierHot     StorageTierHint = "hot"
	TierWarm    StorageTierHint = "warm"
	TierCold    StorageTierHint = "cold"
	TierArchive StorageTierHint = "archive"
)

// DirEntry is a single entry returned by a list operation.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
	Mode  uint32 `json:"mode"`
}

// Subject identifies the caller of a kernel operation: who they are, what
// zone they're acting in, and which agent (if any) is acting on their
// behalf.
type Subject struct {
	ID      string `json:"id"`
	Zone    string `json:"zone"`
	AgentID string `json:"agent_id,omitempty"`
}

// Configuration type aliases re-exported from internal/config so callers
// that only need the data shapes don't have to import the config package
// directly.
type (
	Configuration        = config.Configuration
	MountConfig           = config.MountConfig
	CASConfig             = config.CASConfig
	MetadataStoreConfig   = config.MetadataStoreConfig
	ClusterConfig         = config.ClusterConfig
	ReBACConfig           = config.ReBACConfig
	EventsConfig          = config.EventsConfig
	CacheConfig           = config.CacheConfig
	SecurityConfig        = config.SecurityConfig
	MonitoringConfig      = config.MonitoringConfig
)
