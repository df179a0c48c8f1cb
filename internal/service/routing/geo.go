package routing

import "sort"

// DefaultCountry はビューア国ヘッダーがない場合に使う国コード
const DefaultCountry = "US"

// DefaultRegion は対応表にない国や地域のフォールバック先
const DefaultRegion = "us-east-1"

var countryToRegion = map[string]string{
	"US": "us-east-1", "CA": "us-east-1", "MX": "us-east-1",

	"GB": "eu-west-1", "IE": "eu-west-1", "FR": "eu-west-1", "ES": "eu-west-1",
	"IT": "eu-west-1", "NL": "eu-west-1", "BE": "eu-west-1", "PT": "eu-west-1",

	"DE": "eu-central-1", "AT": "eu-central-1", "CH": "eu-central-1", "PL": "eu-central-1",
	"CZ": "eu-central-1", "HU": "eu-central-1", "SK": "eu-central-1", "SI": "eu-central-1",

	"JP": "ap-northeast-1", "KR": "ap-northeast-1", "CN": "ap-northeast-1", "TW": "ap-northeast-1",

	"SG": "ap-southeast-1", "MY": "ap-southeast-1", "TH": "ap-southeast-1", "ID": "ap-southeast-1",
	"PH": "ap-southeast-1", "VN": "ap-southeast-1", "HK": "ap-southeast-1", "AU": "ap-southeast-1",
	"NZ": "ap-southeast-1", "IN": "ap-southeast-1",
}

var regionPreferences = map[string][]string{
	"us-east-1":      {"us-east-1", "us-west-2", "eu-west-1"},
	"us-west-2":      {"us-west-2", "us-east-1", "ap-southeast-1"},
	"eu-west-1":      {"eu-west-1", "eu-central-1", "us-east-1"},
	"eu-central-1":   {"eu-central-1", "eu-west-1", "us-east-1"},
	"ap-northeast-1": {"ap-northeast-1", "ap-southeast-1", "us-east-1"},
	"ap-southeast-1": {"ap-southeast-1", "ap-northeast-1", "us-east-1"},
	"ap-south-1":     {"ap-south-1", "ap-southeast-1", "ap-northeast-1"},
	"sa-east-1":      {"sa-east-1", "us-east-1", "us-west-2"},
}

// CountryRegion は国コードに対応するリージョンを返します
func CountryRegion(country string) string {
	if r, ok := countryToRegion[country]; ok {
		return r
	}
	return DefaultRegion
}

// RegionPreferences はリージョンに近い順の候補リージョンを返します
func RegionPreferences(region string) []string {
	if prefs, ok := regionPreferences[region]; ok {
		return append([]string(nil), prefs...)
	}
	return []string{DefaultRegion}
}

// Countries は対応表に含まれる国コードをソートして返します
func Countries() []string {
	out := make([]string, 0, len(countryToRegion))
	for c := range countryToRegion {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
