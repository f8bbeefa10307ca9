package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nao1215/depthcrawl/internal/model"
)

// ParseSeeds reads one seed per line in the form "domain [max_depth]".
// Blank lines and text after '#' are ignored. Domains are normalized.
func ParseSeeds(r io.Reader) ([]model.Seed, error) {
	var seeds []model.Seed

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 2 {
			return nil, fmt.Errorf("%w: line %d: expected \"domain [max_depth]\"", ErrInvalidSeed, lineNo)
		}

		domain := model.NormalizeDomain(fields[0])
		if domain == "" {
			return nil, fmt.Errorf("%w: line %d: %q is not a domain", ErrInvalidSeed, lineNo, fields[0])
		}

		seed := model.Seed{Domain: domain}
		if len(fields) == 2 {
			depth, err := strconv.Atoi(fields[1])
			if err != nil || depth <= 0 {
				return nil, fmt.Errorf("%w: line %d: max_depth %q must be a positive integer", ErrInvalidSeed, lineNo, fields[1])
			}
			seed.MaxDepth = depth
		}
		seeds = append(seeds, seed)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seeds: %w", err)
	}
	return seeds, nil
}

// LoadSeedsFile parses the seeds file at path.
func LoadSeedsFile(path string) ([]model.Seed, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided seeds path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open seeds file: %w", err)
	}
	defer f.Close()

	return ParseSeeds(f)
}

// SeedsFromArgs turns command-line domains into seeds.
func SeedsFromArgs(args []string) ([]model.Seed, error) {
	seeds := make([]model.Seed, 0, len(args))
	for _, arg := range args {
		domain := model.NormalizeDomain(arg)
		if domain == "" {
			return nil, fmt.Errorf("%w: %q is not a domain", ErrInvalidSeed, arg)
		}
		seeds = append(seeds, model.Seed{Domain: domain})
	}
	return seeds, nil
}

// MergeSeeds combines seed lists in order of first appearance. A later
// entry for the same domain overrides an earlier max_depth when it sets one.
// Seeds without a depth get defaultDepth.
func MergeSeeds(defaultDepth int, lists ...[]model.Seed) []model.Seed {
	var merged []model.Seed
	index := make(map[string]int)

	for _, list := range lists {
		for _, s := range list {
			domain := model.NormalizeDomain(s.Domain)
			if domain == "" {
				continue
			}
			if i, ok := index[domain]; ok {
				if s.MaxDepth > 0 {
					merged[i].MaxDepth = s.MaxDepth
				}
				continue
			}
			index[domain] = len(merged)
			merged = append(merged, model.Seed{Domain: domain, MaxDepth: s.MaxDepth})
		}
	}

	for i := range merged {
		if merged[i].MaxDepth <= 0 {
			merged[i].MaxDepth = defaultDepth
		}
	}
	return merged
}
