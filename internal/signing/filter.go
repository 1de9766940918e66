package signing

import (
	"fmt"
	"slices"
	"strings"
)

// FilterError is returned when a brand or channel filter does not match the distributions.
type FilterError struct {
	Reason string
	Values []string
}

func (e FilterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Values, ", "))
}

const (
	errUnknownBrands   = "brand codes do not match any distribution"
	errUnknownChannels = "channels do not match any distribution"
	errChannelsRemoved = "all distributions for channels were filtered out by brand"
)

// skipAllBrands in a skip list removes every branded distribution.
const skipAllBrands = "*"

// FilterDistributions removes the distributions whose brand code is in skipBrands and keeps
// only the channels listed in channels. Empty filters keep everything. The "stable" channel
// matches distributions without a channel.
func FilterDistributions(dists []Distribution, skipBrands, channels []string) ([]Distribution, error) {
	var unknownBrands []string
	for _, b := range skipBrands {
		if b == skipAllBrands {
			continue
		}
		if !slices.ContainsFunc(dists, func(d Distribution) bool { return d.BrandCode == b }) {
			unknownBrands = append(unknownBrands, b)
		}
	}
	if len(unknownBrands) > 0 {
		return nil, FilterError{Reason: errUnknownBrands, Values: sortedUnique(unknownBrands)}
	}

	var unknownChannels []string
	for _, c := range channels {
		if !slices.ContainsFunc(dists, func(d Distribution) bool { return d.channelName() == c }) {
			unknownChannels = append(unknownChannels, c)
		}
	}
	if len(unknownChannels) > 0 {
		return nil, FilterError{Reason: errUnknownChannels, Values: sortedUnique(unknownChannels)}
	}

	skipped := func(d Distribution) bool {
		if d.BrandCode == "" {
			return false
		}
		return slices.Contains(skipBrands, skipAllBrands) || slices.Contains(skipBrands, d.BrandCode)
	}

	var kept []Distribution
	removed := make(map[string]bool)
	for _, d := range dists {
		if len(channels) > 0 && !slices.Contains(channels, d.channelName()) {
			continue
		}
		if skipped(d) {
			removed[d.channelName()] = true
			continue
		}
		kept = append(kept, d)
	}

	var emptied []string
	for c := range removed {
		if !slices.ContainsFunc(kept, func(d Distribution) bool { return d.channelName() == c }) {
			emptied = append(emptied, c)
		}
	}
	// Only explicitly requested channels must survive.
	if len(channels) > 0 && len(emptied) > 0 {
		return nil, FilterError{Reason: errChannelsRemoved, Values: sortedUnique(emptied)}
	}
	return kept, nil
}

func sortedUnique(s []string) []string {
	s = slices.Clone(s)
	slices.Sort(s)
	return slices.Compact(s)
}
