package metadatastore

import (
	"encoding/json"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// commandKind distinguishes the metadata mutations that travel through the
// replicated log. Lock commands are handled by internal/cluster directly
// (LockCoordinator); only metadata mutations flow through this store.
type commandKind string

const (
	cmdPut    commandKind = "put_metadata"
	cmdDelete commandKind = "delete_metadata"
	cmdBatch  commandKind = "put_metadata_batch"
)

// command is the payload proposed to the replicated log. It carries both
// the intended write and the precomputed result (new metadata, version
// record) so that applying it on any replica is a pure, deterministic
// persist step rather than a second round of conflict detection.
type command struct {
	Kind         commandKind        `json:"kind"`
	Path         types.VirtualPath  `json:"path"`
	Meta         *types.FileMetadata `json:"meta,omitempty"`
	Version      *types.VersionRecord `json:"version,omitempty"`
	ExpectedETag string             `json:"expected_etag"`

	// Items carries a cmdBatch command's member puts; each is applied
	// with the same all-succeed-or-all-fail discipline write_batch
	// promises, since every item's etag precondition was already
	// validated against a consistent snapshot before the command was
	// proposed.
	Items []command `json:"items,omitempty"`
}

func encodeCommand(c command) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, kernelerrors.Internal("metadatastore", err)
	}
	return data, nil
}

func decodeCommand(data []byte) (command, error) {
	var c command
	if err := json.Unmarshal(data, &c); err != nil {
		return command{}, kernelerrors.Internal("metadatastore", err)
	}
	return c, nil
}
