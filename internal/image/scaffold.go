package image

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// ScaffoldRecord remembers what Prepare created for one mount target so
// that teardown removes exactly that and nothing else.
type ScaffoldRecord struct {
	fs      afero.Fs
	created string // topmost path created by Prepare; empty if none
}

// splitExisting walks target upward and returns the longest existing
// prefix plus the missing trailing segments, outermost first. Pure with
// respect to the given filesystem; it creates nothing.
func splitExisting(fs afero.Fs, target string) (string, []string, error) {
	var missing []string
	prefix := filepath.Clean(target)
	for {
		exists, err := afero.Exists(fs, prefix)
		if err != nil {
			return "", nil, err
		}
		if exists {
			return prefix, missing, nil
		}
		parent := filepath.Dir(prefix)
		if parent == prefix {
			// reached the filesystem root without finding anything
			return prefix, missing, nil
		}
		missing = append([]string{filepath.Base(prefix)}, missing...)
		prefix = parent
	}
}

// Prepare ensures target exists so a mount can land on it. If the target
// already exists nothing is created and teardown is a no-op. A single
// missing segment becomes an empty placeholder matching wantFile (empty
// file vs empty directory). A missing multi-segment suffix becomes the
// full directory chain plus the placeholder leaf, recorded by its
// topmost created ancestor: removal must recurse from the top of what
// was created, or teardown would either orphan intermediate directories
// or destroy pre-existing content above them.
func Prepare(fs afero.Fs, target string, wantFile bool) (*ScaffoldRecord, error) {
	target = filepath.Clean(target)
	prefix, missing, err := splitExisting(fs, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScaffold, target, err)
	}
	if len(missing) == 0 {
		return &ScaffoldRecord{fs: fs}, nil
	}

	topmost := filepath.Join(prefix, missing[0])
	if len(missing) > 1 {
		if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrScaffold, target, err)
		}
	}

	if wantFile {
		f, err := fs.Create(target)
		if err != nil {
			if len(missing) > 1 {
				_ = fs.RemoveAll(topmost)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrScaffold, target, err)
		}
		f.Close()
	} else {
		if err := fs.Mkdir(target, 0755); err != nil {
			if len(missing) > 1 {
				_ = fs.RemoveAll(topmost)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrScaffold, target, err)
		}
	}

	return &ScaffoldRecord{fs: fs, created: topmost}, nil
}

// Created reports the topmost path Prepare created, empty when the
// target already existed.
func (r *ScaffoldRecord) Created() string {
	return r.created
}

// Remove deletes whatever Prepare created. Removal recurses from the
// topmost created path, which by construction never includes a
// pre-existing ancestor.
func (r *ScaffoldRecord) Remove() error {
	if r.created == "" {
		return nil
	}
	if err := r.fs.RemoveAll(r.created); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrScaffold, r.created, err)
	}
	return nil
}
