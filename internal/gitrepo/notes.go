package gitrepo

import (
	"context"
	"fmt"
	"strings"
)

// ListNotes returns every (annotated commit SHA -> note content) pair stored
// under notes ref ref, reading all note blobs in a single batched cat-file
// call rather than one `git notes show` per entry.
func (r *Repo) ListNotes(ctx context.Context, ref string) (map[string]string, error) {
	out, err := r.runner.Run(ctx, "notes", "--ref="+ref, "list")
	if err != nil {
		// No notes ref yet is not an error: an unsynced component simply has
		// no mappings recorded.
		return map[string]string{}, nil
	}

	var reqs []BlobRequest
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		reqs = append(reqs, BlobRequest{SHA: fields[0], Path: ""})
	}
	if len(reqs) == 0 {
		return map[string]string{}, nil
	}

	blobs, err := r.readBlobsBulk(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("read note blobs: %w", err)
	}

	result := make(map[string]string, len(reqs))
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		noteBlobSHA, commitSHA := fields[0], fields[1]
		if content, ok := blobs[noteBlobSHA]; ok {
			result[commitSHA] = strings.TrimSpace(string(content))
		}
	}
	return result, nil
}

// readBlobsBulk is a bare-blob-SHA variant of ReadFilesBulk (no path
// component, just `<sha>\n` per request) used for note blob lookups.
func (r *Repo) readBlobsBulk(ctx context.Context, reqs []BlobRequest) (map[string][]byte, error) {
	if len(reqs) == 0 {
		return map[string][]byte{}, nil
	}
	shas := make([]string, len(reqs))
	for i, req := range reqs {
		shas[i] = req.SHA
	}
	out, err := r.batchCatFile(ctx, shas)
	return out, err
}

// WriteNote attaches content to commitSHA under notes ref ref, overwriting
// any existing note.
func (r *Repo) WriteNote(ctx context.Context, ref, commitSHA, content string) error {
	_, err := r.runner.RunWithInput(ctx, content, "notes", "--ref="+ref, "add", "-f", "-F", "-", commitSHA)
	if err != nil {
		return fmt.Errorf("notes add: %w", err)
	}
	return nil
}
