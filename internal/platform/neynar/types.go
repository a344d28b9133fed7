package neynar

import (
	"strings"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

// APIUser is a user record as returned by the Neynar v2 user endpoints.
type APIUser struct {
	FID            uint64 `json:"fid"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	PfpURL         string `json:"pfp_url"`
	CustodyAddress string `json:"custody_address"`
	Profile        struct {
		Bio struct {
			Text string `json:"text"`
		} `json:"bio"`
	} `json:"profile"`
	VerifiedAddresses struct {
		EthAddresses []string `json:"eth_addresses"`
	} `json:"verified_addresses"`
}

// ToDomainProfile converts an API user to a domain.Profile with lowercased
// addresses.
func (u APIUser) ToDomainProfile() domain.Profile {
	verified := make([]string, 0, len(u.VerifiedAddresses.EthAddresses))
	for _, a := range u.VerifiedAddresses.EthAddresses {
		verified = append(verified, strings.ToLower(a))
	}
	return domain.Profile{
		FID:               u.FID,
		Username:          u.Username,
		DisplayName:       u.DisplayName,
		PfpURL:            u.PfpURL,
		Bio:               u.Profile.Bio.Text,
		CustodyAddress:    strings.ToLower(u.CustodyAddress),
		VerifiedAddresses: verified,
	}
}

type bulkUsersResponse struct {
	Users []APIUser `json:"users"`
}
