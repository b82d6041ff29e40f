package models

// BlockNumber is the ledger height. It is encoded as a 4-byte little-endian
// integer wherever it appears in a key.
type BlockNumber uint32

// ReconciliationRecord is what a node learned or attempted at one height.
// Field order is part of the persisted encoding.
type ReconciliationRecord struct {
	Tag   []byte `json:"tag"`
	Value uint64 `json:"value"`
}

// Record tags written by the worker and by the ledger's indexing call.
var (
	TagPriceFetched   = []byte("price_fetched")
	TagFetchFailed    = []byte("fetch_failed")
	TagSubmittedIndex = []byte("submit_number_unsigned")
)

// PriceQuote is the decoded body of the external price endpoint.
type PriceQuote struct {
	PriceUSD uint32 `json:"price_usd"`
}
