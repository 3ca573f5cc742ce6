package models

const (
	CountryLocal   = "Local"
	CountryUnknown = "Unknown"
	ISPUnknown     = "Unknown ISP"
	ISPLocal       = "Local Network"
)

// GeoLocation is what the resolver knows about a source address.
type GeoLocation struct {
	Country string
	ISP     string
}
