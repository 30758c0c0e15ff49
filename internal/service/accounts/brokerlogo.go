package accounts

import (
	"regexp"
	"strings"
)

// DefaultBrokerLogo is served when no broker can be derived from the
// platform server string.
const DefaultBrokerLogo = "/default-broker-logo.svg"

// Platform server strings encode the broker plus environment noise, e.g.
// "Exness-MT5Real23" or "ICMarkets-Live01". Strip the noise before
// matching against the known-broker table.
var (
	serverSuffixRe = regexp.MustCompile(`(?i)-MT[45]|-Real\d*|-Live\d*|-Demo\d*`)
	trailingNumRe  = regexp.MustCompile(`\d+$`)
	separatorRe    = regexp.MustCompile(`[-\s]+`)
)

// brokerNames maps the cleaned server prefix to a display name.
var brokerNames = map[string]string{
	"IC":          "IC Markets",
	"FXTM":        "ForexTime",
	"HF":          "HotForex",
	"FBS":         "FBS",
	"Exness":      "Exness",
	"XM":          "XM",
	"Pepperstone": "Pepperstone",
	"OANDA":       "OANDA",
	"IG":          "IG Group",
}

// brokerLogos maps a broker display name to its public logo URL.
var brokerLogos = map[string]string{
	"Exness":      "https://www.exness.com/favicon.ico",
	"IC Markets":  "https://www.icmarkets.com/favicon.ico",
	"XM":          "https://www.xm.com/favicon.ico",
	"Pepperstone": "https://www.pepperstone.com/favicon.ico",
	"OANDA":       "https://www.oanda.com/favicon.ico",
	"ForexTime":   "https://www.forextime.com/favicon.ico",
	"FBS":         "https://fbs.com/favicon.ico",
	"HotForex":    "https://www.hotforex.com/favicon.ico",
	"IG Group":    "https://www.ig.com/favicon.ico",
}

// ExtractBrokerName derives the broker display name from a platform server
// string. Returns "" when nothing usable remains after cleaning.
func ExtractBrokerName(platformServer string) string {
	if platformServer == "" {
		return ""
	}

	cleaned := serverSuffixRe.ReplaceAllString(platformServer, "")
	cleaned = trailingNumRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}

	prefix := separatorRe.Split(cleaned, 2)[0]
	if prefix == "" {
		return ""
	}
	if name, ok := brokerNames[prefix]; ok {
		return name
	}
	return prefix
}

// BrokerLogoURL returns the logo URL for a platform server string, falling
// back to the bundled placeholder for unknown brokers.
func BrokerLogoURL(platformServer string) string {
	name := ExtractBrokerName(platformServer)
	if name == "" {
		return DefaultBrokerLogo
	}
	if logo, ok := brokerLogos[name]; ok {
		return logo
	}
	return DefaultBrokerLogo
}
