package cas

import "github.com/nexi-lab/nexuskernel/pkg/types"

// storageClassFor maps a kernel storage-tier hint to an S3 storage class.
// Grounded on internal/storage/s3/tiers.go's StorageTiers table (teacher),
// trimmed from a dollar-cost advisory table to the direct hint->class
// mapping. Nothing calls it: S3Backend writes use fixed storage classes.
func storageClassFor(hint types.StorageTierHint) string {
	switch hint {
	case types.TierHot:
		return "STANDARD"
	case types.TierWarm:
		return "STANDARD_IA"
	case types.TierCold:
		return "GLACIER_IR"
	case types.TierArchive:
		return "DEEP_ARCHIVE"
	default:
		return "STANDARD"
	}
}

// minStorageDays mirrors AWS's early-deletion-fee embargo per tier.
// Nothing calls it.
func minStorageDays(hint types.StorageTierHint) int {
	switch hint {
	case types.TierWarm:
		return 30
	case types.TierCold:
		return 90
	case types.TierArchive:
		return 180
	default:
		return 0
	}
}
