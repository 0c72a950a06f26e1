package cloudbill

import "github.com/xraph/cloudbill/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	Zero       = types.Zero
	Sum        = types.Sum
	NewMoney   = types.NewMoney
	ParseMoney = types.ParseMoney
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
