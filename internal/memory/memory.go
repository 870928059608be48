package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/kernel"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// envelope is the JSON shape a Memory Entry's bytes take on disk: the
// content plus the bitemporal fields spec.md §3.9 calls out. Everything
// else (path, zone, version, recorded_at) already lives in the façade's
// own FileMetadata/VersionRecord and isn't duplicated here.
type envelope struct {
	Content    string     `json:"content"`
	Tags       []string   `json:"tags,omitempty"`
	Subject    string     `json:"subject"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Service exposes the Memory Entry operations, built entirely atop a
// *kernel.Kernel - no separate storage path, per the "same rules as
// files" contract.
type Service struct {
	k *kernel.Kernel
}

func NewService(k *kernel.Kernel) *Service {
	return &Service{k: k}
}

// QueryOptions resolves a Memory Entry as of two independent instants,
// mirroring the point-in-time query's as_of_system ("what did the system
// know at time X") and as_of_event ("what was true at time X") params.
// A zero AsOfSystem means "the latest version"; a zero AsOfEvent skips
// the validity-window check entirely.
type QueryOptions struct {
	AsOfSystem time.Time
	AsOfEvent  time.Time
}

// Put stores a Memory Entry at entry.Path, same write path any file
// takes. A missing ValidFrom defaults to now, so a plain store() without
// explicit bitemporal fields is simply "true as of now".
func (s *Service) Put(ctx context.Context, subject types.Subject, entry types.MemoryEntry) (*types.MemoryEntry, error) {
	if entry.ValidFrom.IsZero() {
		entry.ValidFrom = time.Now()
	}
	env := envelope{
		Content:    entry.Content,
		Tags:       entry.Tags,
		Subject:    entry.Subject,
		ValidFrom:  entry.ValidFrom,
		ValidUntil: entry.ValidUntil,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, kernelerrors.Internal("memory", err)
	}

	meta, err := s.k.Write(ctx, subject, entry.Path, payload, kernel.WriteOptions{})
	if err != nil {
		return nil, err
	}
	return toEntry(meta.Path, meta.Zone, meta.ModifyTime, meta.Version, env), nil
}

// Get returns the current Memory Entry at path - the envelope's current
// version, no temporal filtering.
func (s *Service) Get(ctx context.Context, subject types.Subject, path types.VirtualPath) (*types.MemoryEntry, error) {
	data, meta, err := s.k.Read(ctx, subject, path, kernel.ReadOptions{ReturnMetadata: true})
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, kernelerrors.Internal("memory", err)
	}
	return toEntry(meta.Path, meta.Zone, meta.ModifyTime, meta.Version, env), nil
}

// GetAt resolves a Memory Entry under both temporal axes: it first picks
// the version that existed as of opts.AsOfSystem (the latest version if
// unset), then - if opts.AsOfEvent is set - rejects that version unless
// its recorded validity window actually covers the requested instant.
func (s *Service) GetAt(ctx context.Context, subject types.Subject, path types.VirtualPath, opts QueryOptions) (*types.MemoryEntry, error) {
	var entry *types.MemoryEntry
	if opts.AsOfSystem.IsZero() {
		e, err := s.Get(ctx, subject, path)
		if err != nil {
			return nil, err
		}
		entry = e
	} else {
		e, err := s.getAsOfSystem(ctx, subject, path, opts.AsOfSystem)
		if err != nil {
			return nil, err
		}
		entry = e
	}

	if !opts.AsOfEvent.IsZero() && !coversInstant(entry, opts.AsOfEvent) {
		return nil, kernelerrors.NotFound("memory", "no memory entry valid at the requested instant").
			WithContext("path", string(path))
	}
	return entry, nil
}

func coversInstant(entry *types.MemoryEntry, at time.Time) bool {
	if entry.ValidFrom.After(at) {
		return false
	}
	if entry.ValidUntil != nil && !at.Before(*entry.ValidUntil) {
		return false
	}
	return true
}

// getAsOfSystem walks path's version history for the most recent version
// recorded at or before asOf - "what did the system know at time X".
func (s *Service) getAsOfSystem(ctx context.Context, subject types.Subject, path types.VirtualPath, asOf time.Time) (*types.MemoryEntry, error) {
	versions, err := s.k.ListVersions(ctx, subject, path)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })

	var target *types.VersionRecord
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].CreatedAt.After(asOf) {
			v := versions[i]
			target = &v
			break
		}
	}
	if target == nil {
		return nil, kernelerrors.NotFound("memory", "no memory version recorded at or before the requested instant").
			WithContext("path", string(path))
	}

	data, rec, err := s.k.GetVersion(ctx, subject, path, target.Version)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, kernelerrors.Internal("memory", err)
	}
	return toEntry(rec.Path, subject.Zone, rec.CreatedAt, rec.Version, env), nil
}

// Invalidate sets a Memory Entry's invalid_at, soft-deleting it: the
// entry stays readable through GetAt with AsOfSystem/AsOfEvent for any
// instant before invalidAt or before this call was recorded, since the
// write appends a new version rather than mutating history.
func (s *Service) Invalidate(ctx context.Context, subject types.Subject, path types.VirtualPath, invalidAt time.Time) (*types.MemoryEntry, error) {
	current, err := s.Get(ctx, subject, path)
	if err != nil {
		return nil, err
	}
	current.ValidUntil = &invalidAt
	return s.Put(ctx, subject, *current)
}

// SearchOptions filters List's results down to Memory Entries matching
// every given tag and, if set, resolved at the given temporal instants.
type SearchOptions struct {
	Tags  []string
	AsOf  QueryOptions
	Limit int
}

// Search lists every Memory Entry under dir, resolves each one per
// opts.AsOf, and keeps the ones carrying every tag in opts.Tags.
func (s *Service) Search(ctx context.Context, subject types.Subject, dir types.VirtualPath, opts SearchOptions) ([]types.MemoryEntry, error) {
	children, err := s.k.List(ctx, subject, dir, kernel.ListOptions{Recursive: true})
	if err != nil {
		return nil, err
	}

	var out []types.MemoryEntry
	for _, c := range children {
		if c.IsDir {
			continue
		}
		entry, err := s.GetAt(ctx, subject, types.VirtualPath(c.Name), opts.AsOf)
		if err != nil {
			continue
		}
		if !hasAllTags(entry.Tags, opts.Tags) {
			continue
		}
		out = append(out, *entry)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func toEntry(path types.VirtualPath, zone string, recordedAt time.Time, version int64, env envelope) *types.MemoryEntry {
	return &types.MemoryEntry{
		Path:       path,
		Zone:       zone,
		Subject:    env.Subject,
		Content:    env.Content,
		Tags:       env.Tags,
		ValidFrom:  env.ValidFrom,
		ValidUntil: env.ValidUntil,
		RecordedAt: recordedAt,
		Version:    version,
	}
}
