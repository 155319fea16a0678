package domain

// Resolution is the final on-chain determination of a binary market,
// recorded by the reality.eth oracle once the answer is finalized.
type Resolution string

const (
	// ResolutionNone means the market has no finalized answer yet.
	ResolutionNone Resolution = ""
	ResolutionYes  Resolution = "YES"
	ResolutionNo   Resolution = "NO"
)
