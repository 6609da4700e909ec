package cache

import "strings"

// KeyProduct returns the cache key for a product record.
func KeyProduct(id string) string {
	return "product:" + id
}

// KeyVariant returns the cache key for a price variant record.
func KeyVariant(id string) string {
	return "variant:" + id
}

// KeyTaxRate returns the cache key for a resolved jurisdiction rate.
func KeyTaxRate(country, region string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return "taxrate:" + country
	}
	return "taxrate:" + country + ":" + region
}
