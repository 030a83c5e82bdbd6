package conflict

import "bytes"

// hunk is a maximal span of base lines [start,end) that differ from one
// side, paired with the replacement lines that side has in their place.
type hunk struct {
	baseStart, baseEnd int
	lines              []string
}

// splitLines splits content into lines, preserving line endings so the
// merged output can be reassembled byte-for-byte where nothing changed.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	var lines []string
	for len(content) > 0 {
		idx := bytes.IndexByte(content, '\n')
		if idx == -1 {
			lines = append(lines, string(content))
			break
		}
		lines = append(lines, string(content[:idx+1]))
		content = content[idx+1:]
	}
	return lines
}

// lcsMatches returns the indices of a longest common subsequence of lines
// between a and b, as ordered (aIdx, bIdx) pairs, via a straightforward
// dynamic-programming table. Adequate for the manifest- and
// changelog-sized files this resolver is built for.
func lcsMatches(a, b []string) [][2]int {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var matches [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			matches = append(matches, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return matches
}

// hunksAgainstBase computes the spans of base that differ in other, using
// the longest common subsequence of lines as the set of unchanged anchors.
func hunksAgainstBase(base, other []string) []hunk {
	matches := lcsMatches(base, other)
	var hunks []hunk
	baseI, otherJ := 0, 0
	flush := func(baseEnd, otherEnd int) {
		if baseI == baseEnd && otherJ == otherEnd {
			return
		}
		hunks = append(hunks, hunk{
			baseStart: baseI,
			baseEnd:   baseEnd,
			lines:     append([]string{}, other[otherJ:otherEnd]...),
		})
	}
	for _, m := range matches {
		flush(m[0], m[1])
		baseI, otherJ = m[0]+1, m[1]+1
	}
	flush(len(base), len(other))
	return hunks
}

// mergeRegion is one base span with the hunk (if any) each side applies
// there.
type mergeRegion struct {
	baseStart, baseEnd int
	ours, theirs       *hunk
}

// mergeRegions merges two independently computed hunk lists into a single
// ordered sequence of regions, so overlapping changes from both sides land
// in the same region and can be compared for equality (clean auto-merge)
// or flagged as a conflict.
func mergeRegions(baseLen int, oursHunks, theirsHunks []hunk) []mergeRegion {
	boundaries := map[int]bool{0: true, baseLen: true}
	for _, h := range oursHunks {
		boundaries[h.baseStart] = true
		boundaries[h.baseEnd] = true
	}
	for _, h := range theirsHunks {
		boundaries[h.baseStart] = true
		boundaries[h.baseEnd] = true
	}
	points := make([]int, 0, len(boundaries))
	for b := range boundaries {
		points = append(points, b)
	}
	sortInts(points)

	findHunk := func(hunks []hunk, start, end int) *hunk {
		for i := range hunks {
			if hunks[i].baseStart == start && hunks[i].baseEnd == end {
				return &hunks[i]
			}
		}
		return nil
	}

	var regions []mergeRegion
	for i := 0; i < len(points); i++ {
		start := points[i]
		// Pure insertions are zero-width hunks anchored at a boundary point.
		if o, t := findHunk(oursHunks, start, start), findHunk(theirsHunks, start, start); o != nil || t != nil {
			regions = append(regions, mergeRegion{baseStart: start, baseEnd: start, ours: o, theirs: t})
		}
		if i+1 == len(points) {
			break
		}
		end := points[i+1]
		regions = append(regions, mergeRegion{
			baseStart: start,
			baseEnd:   end,
			ours:      findHunk(oursHunks, start, end),
			theirs:    findHunk(theirsHunks, start, end),
		})
	}
	return regions
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
