package conflict

import (
	"bytes"
	"strings"
)

// Policy names the merge strategy applied when both sides of a sync have
// touched the same file since the last common anchor (§4.5).
type Policy string

const (
	// PolicyPreferOurs always keeps the monorepo side's content unchanged.
	PolicyPreferOurs Policy = "ours"
	// PolicyPreferTheirs always takes the remote side's content.
	PolicyPreferTheirs Policy = "theirs"
	// PolicyTextualUnion concatenates both sides' lines, duplicates
	// permitted; suited to append-only files like changelogs.
	PolicyTextualUnion Policy = "union"
	// PolicyEmitMarkers performs a standard three-way textual merge,
	// writing conflict markers around any region both sides changed
	// differently.
	PolicyEmitMarkers Policy = "manual"
)

const binarySniffWindow = 1024

// isBinary reports whether content looks binary: a NUL byte within the
// first 1KB, the same heuristic git itself uses.
func isBinary(content []byte) bool {
	window := content
	if len(window) > binarySniffWindow {
		window = window[:binarySniffWindow]
	}
	return bytes.IndexByte(window, 0) != -1
}

// Result is the outcome of resolving one file's conflicting versions.
type Result struct {
	Merged     []byte
	Unresolved bool
}

// Resolve merges base, ours, and theirs according to policy. Binary content
// (detected via a NUL byte in the first kilobyte of any input) falls back
// to preferring ours under every policy other than the marker policy, and is
// reported unresolved under the marker policy, since byte content cannot
// carry text conflict markers.
func Resolve(base, ours, theirs []byte, policy Policy) (Result, error) {
	anyBinary := isBinary(base) || isBinary(ours) || isBinary(theirs)

	switch policy {
	case PolicyPreferOurs:
		return Result{Merged: ours}, nil
	case PolicyPreferTheirs:
		if anyBinary {
			return Result{Merged: ours}, nil
		}
		return Result{Merged: theirs}, nil
	case PolicyTextualUnion:
		if anyBinary {
			return Result{Merged: ours}, nil
		}
		return Result{Merged: textualUnion(ours, theirs)}, nil
	case PolicyEmitMarkers:
		if anyBinary {
			return Result{Merged: ours, Unresolved: true}, nil
		}
		return emitMarkersMerge(base, ours, theirs), nil
	default:
		return Result{Merged: ours, Unresolved: true}, nil
	}
}

// textualUnion concatenates every line from ours followed by every line
// from theirs, duplicates permitted. Suited to additive, order-insensitive
// files such as changelogs where both sides' entries should survive.
func textualUnion(ours, theirs []byte) []byte {
	var buf bytes.Buffer
	buf.Write(ours)
	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.Write(theirs)
	return buf.Bytes()
}

const (
	markerOursOpen   = "<<<<<<< ours\n"
	markerBaseSep    = "=======\n"
	markerTheirsOpen = ">>>>>>> theirs\n"
)

// emitMarkersMerge performs a line-based three-way merge. Regions changed
// identically by both sides, or changed by only one side, are merged
// cleanly; regions changed differently by both sides are wrapped in
// conflict markers and the result is reported unresolved.
func emitMarkersMerge(base, ours, theirs []byte) Result {
	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	oursHunks := hunksAgainstBase(baseLines, oursLines)
	theirsHunks := hunksAgainstBase(baseLines, theirsLines)
	regions := mergeRegions(len(baseLines), oursHunks, theirsHunks)

	var out strings.Builder
	unresolved := false
	for _, r := range regions {
		switch {
		case r.ours == nil && r.theirs == nil:
			out.WriteString(strings.Join(baseLines[r.baseStart:r.baseEnd], ""))
		case r.ours != nil && r.theirs == nil:
			out.WriteString(strings.Join(r.ours.lines, ""))
		case r.ours == nil && r.theirs != nil:
			out.WriteString(strings.Join(r.theirs.lines, ""))
		default:
			if linesEqual(r.ours.lines, r.theirs.lines) {
				out.WriteString(strings.Join(r.ours.lines, ""))
				continue
			}
			unresolved = true
			out.WriteString(markerOursOpen)
			out.WriteString(strings.Join(r.ours.lines, ""))
			out.WriteString(markerBaseSep)
			out.WriteString(strings.Join(r.theirs.lines, ""))
			out.WriteString(markerTheirsOpen)
		}
	}
	return Result{Merged: []byte(out.String()), Unresolved: unresolved}
}
