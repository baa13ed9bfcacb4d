// Package chainparams holds static per-chain tuning values for log scanning.
// Every lookup falls back to conservative defaults for chains it does not know,
// so arbitrary RPC backends are never asked for more than they can serve.
package chainparams

// MaxBatchMultiplier caps how many batches behind the head a scan may reach.
const MaxBatchMultiplier = 20

const (
	// DefaultMaxBlockBatchSize is the log query span used for unknown chains.
	DefaultMaxBlockBatchSize = 100

	// DefaultBatchMultiplier is the number of batches scanned for unknown chains.
	DefaultBatchMultiplier = 1
)

// Tunables groups the values of a single chain.
type Tunables struct {
	// InitialBlock is the first block with relevant activity, 0 if unknown.
	InitialBlock uint64

	// MaxBlockBatchSize is the widest block span a single eth_getLogs call may cover.
	MaxBlockBatchSize uint64

	// BatchMultiplier is how many batches back from the head are safe to backfill.
	BatchMultiplier uint64
}

// Well-known chain ids.
const (
	Ethereum        uint64 = 1
	Optimism        uint64 = 10
	BNBSmartChain   uint64 = 56
	Gnosis          uint64 = 100
	Polygon         uint64 = 137
	Fantom          uint64 = 250
	Base            uint64 = 8453
	ArbitrumOne     uint64 = 42161
	Avalanche       uint64 = 43114
	Linea           uint64 = 59144
	Sepolia         uint64 = 11155111
	PolygonAmoy     uint64 = 80002
	ArbitrumSepolia uint64 = 421614
)

var known = map[uint64]Tunables{
	Ethereum:        {InitialBlock: 46_147, MaxBlockBatchSize: 2_000, BatchMultiplier: 10},
	Optimism:        {InitialBlock: 0, MaxBlockBatchSize: 10_000, BatchMultiplier: 20},
	BNBSmartChain:   {InitialBlock: 0, MaxBlockBatchSize: 5_000, BatchMultiplier: 20},
	Gnosis:          {InitialBlock: 0, MaxBlockBatchSize: 5_000, BatchMultiplier: 10},
	Polygon:         {InitialBlock: 0, MaxBlockBatchSize: 3_500, BatchMultiplier: 20},
	Fantom:          {InitialBlock: 0, MaxBlockBatchSize: 5_000, BatchMultiplier: 10},
	Base:            {InitialBlock: 0, MaxBlockBatchSize: 10_000, BatchMultiplier: 20},
	ArbitrumOne:     {InitialBlock: 22_207_815, MaxBlockBatchSize: 10_000, BatchMultiplier: 20},
	Avalanche:       {InitialBlock: 0, MaxBlockBatchSize: 2_048, BatchMultiplier: 20},
	Linea:           {InitialBlock: 0, MaxBlockBatchSize: 5_000, BatchMultiplier: 10},
	Sepolia:         {InitialBlock: 0, MaxBlockBatchSize: 10_000, BatchMultiplier: 10},
	PolygonAmoy:     {InitialBlock: 0, MaxBlockBatchSize: 3_500, BatchMultiplier: 10},
	ArbitrumSepolia: {InitialBlock: 0, MaxBlockBatchSize: 10_000, BatchMultiplier: 10},
}

// Lookup returns the tunables for chainID, or the conservative defaults when
// the chain is not known.
func Lookup(chainID uint64) Tunables {
	t, ok := known[chainID]
	if !ok {
		return Tunables{
			InitialBlock:      0,
			MaxBlockBatchSize: DefaultMaxBlockBatchSize,
			BatchMultiplier:   DefaultBatchMultiplier,
		}
	}

	t.BatchMultiplier = min(t.BatchMultiplier, MaxBatchMultiplier)
	return t
}

// InitialBlock returns the first block with relevant activity for chainID.
func InitialBlock(chainID uint64) uint64 {
	return Lookup(chainID).InitialBlock
}

// MaxBlockBatchSize returns the widest safe eth_getLogs span for chainID.
func MaxBlockBatchSize(chainID uint64) uint64 {
	return Lookup(chainID).MaxBlockBatchSize
}

// BatchMultiplier returns how many batches behind the head chainID may be scanned,
// never more than MaxBatchMultiplier.
func BatchMultiplier(chainID uint64) uint64 {
	return Lookup(chainID).BatchMultiplier
}

// ScanWindow returns the number of blocks behind the head a single scan may cover.
func ScanWindow(chainID uint64) uint64 {
	t := Lookup(chainID)
	return t.MaxBlockBatchSize * t.BatchMultiplier
}
