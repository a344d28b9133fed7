package domain

// Profile is an identity-service user record. It is presentation
// enrichment only and never authoritative.
type Profile struct {
	FID               uint64   `json:"fid"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	PfpURL            string   `json:"pfp_url"`
	Bio               string   `json:"bio,omitempty"`
	CustodyAddress    string   `json:"custody_address,omitempty"`
	VerifiedAddresses []string `json:"verified_addresses,omitempty"`
}

// TokenSnapshot is the market-data view of a token. Numeric fields are
// non-negative decimal strings as returned upstream.
type TokenSnapshot struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
	ImageURL     string `json:"image_url"`
	PriceUSD     string `json:"price_usd"`
	MarketCapUSD string `json:"market_cap_usd"`
	Volume24hUSD string `json:"volume_24h_usd"`
}
