package models

// RentCastListing mirrors the provider's rental listing payload. Only the
// fields the detector needs are declared; everything else in the payload is
// ignored during decoding.
type RentCastListing struct {
	ID           string                          `json:"id"`
	ZipCode      string                          `json:"zipCode"`
	Bedrooms     *int                            `json:"bedrooms"`
	Price        *float64                        `json:"price"`
	Furnished    *bool                           `json:"furnished"`
	Status       string                          `json:"status"`
	ListedDate   string                          `json:"listedDate"`
	CreatedDate  string                          `json:"createdDate"`
	LastSeenDate string                          `json:"lastSeenDate"`
	History      map[string]RentCastHistoryEvent `json:"history"`
}

// RentCastHistoryEvent is one entry of the provider's per-listing history,
// keyed in the payload by its ISO date. Price may be absent for non-price
// events (for example a delisting).
type RentCastHistoryEvent struct {
	Event       string   `json:"event"`
	Price       *float64 `json:"price"`
	Furnished   *bool    `json:"furnished"`
	ListingType string   `json:"listingType"`
	ListedDate  string   `json:"listedDate"`
	RemovedDate string   `json:"removedDate"`
}
