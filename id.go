package cloudbill

import "github.com/xraph/cloudbill/id"

// ID is the surrogate identifier type for engine-created records.
type ID = id.ID
