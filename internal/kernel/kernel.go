package kernel

import (
	"context"

	"github.com/nexi-lab/nexuskernel/internal/cas"
	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/internal/events"
	"github.com/nexi-lab/nexuskernel/internal/metadatastore"
	"github.com/nexi-lab/nexuskernel/internal/readset"
	"github.com/nexi-lab/nexuskernel/internal/rebac"
	"github.com/nexi-lab/nexuskernel/internal/router"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Kernel is the services record the design notes call for: every public
// operation is a method on Kernel threading a context.Context, a
// types.Subject (who's calling, which zone), and an operation-scoped
// argument struct through the six components below.
type Kernel struct {
	cas     types.CASBackend
	meta    *metadatastore.Store
	router  *router.Router
	rebac   *rebac.Engine
	events    types.EventBus
	readset   *readset.Registry
	snapshots *snapshotStore

	cfg *config.Configuration
}

// New wires every component from cfg, in the same dependency order the
// teacher's internal/adapter.Adapter.Start does (metrics/backend/cache/
// buffer/mount): storage first, then the access-control layer that reads
// from it, then the orchestration layers on top.
func New(ctx context.Context, cfg *config.Configuration, cl *cluster.Cluster) (*Kernel, error) {
	casBackend, err := newCASBackend(ctx, cfg.CAS)
	if err != nil {
		return nil, err
	}

	meta, err := metadatastore.New(cfg.MetadataStore, cl)
	if err != nil {
		return nil, err
	}

	rt, err := router.New(cfg.Mounts)
	if err != nil {
		return nil, err
	}

	gr := &groupResolver{}
	engine, err := rebac.NewEngine(cfg.ReBAC, &descendantLister{store: meta},
		rebac.WithPosixResolver(&posixResolver{store: meta}),
		rebac.WithGroupResolver(gr),
	)
	if err != nil {
		return nil, err
	}
	gr.engine = engine

	bus, err := events.New(cfg.Events, cl)
	if err != nil {
		return nil, err
	}

	rs := readset.New(cfg.ReadSet)
	go rs.Run(ctx, cfg.ReadSet.SweepInterval)

	// Every successful metadata write/delete should invalidate the
	// read sets that depended on it; the façade's write/delete methods
	// call readset.AffectedQueries explicitly around the event publish
	// rather than wiring this through meta.OnWrite, since only the
	// façade knows the write's revision and which event type to emit.

	return &Kernel{
		cas:       casBackend,
		meta:      meta,
		router:    rt,
		rebac:     engine,
		events:    bus,
		readset:   rs,
		snapshots: newSnapshotStore(),
		cfg:       cfg,
	}, nil
}

func newCASBackend(ctx context.Context, cfg config.CASConfig) (types.CASBackend, error) {
	switch cfg.Backend {
	case "s3":
		s3cfg := cas.NewDefaultConfig()
		s3cfg.Region = cfg.S3.Region
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.EnableCargoShipOptimization = cfg.S3.CargoShipEnabled
		return cas.NewS3Backend(ctx, cfg.S3.Bucket, s3cfg)
	default:
		root := cfg.PassthroughRoot
		if root == "" {
			root = "./data/cas"
		}
		return cas.NewPassthrough(root)
	}
}

// Close releases every component that owns a background goroutine or
// open resource.
func (k *Kernel) Close() error {
	k.readset.Stop()
	k.rebac.Close()
	if closer, ok := k.events.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return k.meta.Close()
}

// checkPermission is the shared read/write/execute gate every operation
// calls before touching the metadata store or CAS.
func (k *Kernel) checkPermission(ctx context.Context, subject types.Subject, permission string, path types.VirtualPath) error {
	allowed, err := k.rebac.Check(ctx, subject.ID, permission, "file", string(path), subject.Zone)
	if err != nil {
		return err
	}
	if !allowed {
		return kernelerrors.PermissionDenied("kernel", permission+" denied").WithContext("path", string(path))
	}
	return nil
}

// resolveZone resolves path through the router and confirms the caller
// isn't crossing a zone boundary without the zone-management capability,
// per I11. Cross-zone access is simply: the router's mount zone must
// equal the caller's zone, or the caller's zone is empty (back-compat:
// not all deployments scope subjects to a zone).
func (k *Kernel) resolveZone(path types.VirtualPath, subject types.Subject) (router.Resolution, error) {
	res, err := k.router.Resolve(string(path))
	if err != nil {
		return router.Resolution{}, err
	}
	if res.Zone != "" && subject.Zone != "" && res.Zone != subject.Zone {
		return router.Resolution{}, kernelerrors.PermissionDenied("kernel", "cross-zone access denied").
			WithContext("path", string(path)).WithContext("zone", res.Zone)
	}
	return res, nil
}

// invalidateReadSet unregisters every query whose prior read set included
// writePath, per I10: once unregistered a query is no longer tracked, so
// its next access must re-run rather than serve a now-stale result.
func (k *Kernel) invalidateReadSet(ctx context.Context, writePath types.VirtualPath, zone string) {
	ids, err := k.readset.AffectedQueries(ctx, writePath, zone)
	if err != nil {
		return
	}
	for _, id := range ids {
		_ = k.readset.Unregister(ctx, id)
	}
}
