// Package resolve picks the destination folder for a recipient name.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/match"
	"github.com/dhcgn/mailscan-to-drive/model"
)

type Policy string

const (
	// PolicyStrict routes ambiguous and weak matches to the default folder.
	PolicyStrict Policy = "strict"
	// PolicyBest takes the top candidate and creates a recipient folder on a miss.
	PolicyBest Policy = "best"
)

const (
	DefaultFolderName      = "Unmatched Court Documents"
	DefaultStrictThreshold = 90
	DefaultBestThreshold   = 80
)

// ErrNoRoot is returned when a recursive listing has no root folder to start from.
var ErrNoRoot = errors.New("recursive folder listing requires a root folder id")

func Policies() []string {
	return []string{string(PolicyStrict), string(PolicyBest)}
}

type Options struct {
	Policy Policy
	// Threshold is the minimum score for a match; 0 selects the policy default.
	Threshold         int
	DefaultFolderName string
	// RootID scopes listing and creation. Empty means the whole store.
	RootID       string
	Recursive    bool
	ReuseListing bool
}

// Candidate is a folder with its score against a recipient name.
type Candidate struct {
	Folder model.Folder
	Score  int
}

// Explanation describes how a name would be resolved without changing the store.
type Explanation struct {
	Policy        Policy
	Threshold     int
	DefaultFolder model.Folder
	Candidates    []Candidate
	// Match is nil when the name falls back to the default folder or a new folder.
	Match        *Candidate
	Ambiguous    []Candidate
	CreateFolder bool
}

type Resolver struct {
	store  destination.FolderStore
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	defaultFolder *model.Folder
	listing       []model.Folder
	listed        bool
}

func New(store destination.FolderStore, opts Options, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Policy {
	case "":
		opts.Policy = PolicyStrict
	case PolicyStrict, PolicyBest:
	default:
		return nil, fmt.Errorf("unknown match policy %q (want one of %s)", opts.Policy, strings.Join(Policies(), ", "))
	}
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return nil, fmt.Errorf("match threshold %d out of range 0-100", opts.Threshold)
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultStrictThreshold
		if opts.Policy == PolicyBest {
			opts.Threshold = DefaultBestThreshold
		}
	}
	if strings.TrimSpace(opts.DefaultFolderName) == "" {
		opts.DefaultFolderName = DefaultFolderName
	}
	if opts.Recursive && opts.RootID == "" {
		return nil, ErrNoRoot
	}

	return &Resolver{store: store, opts: opts, logger: logger}, nil
}

func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve returns the folder a document for recipientName belongs in. On a nil
// error the resolution always carries a folder id.
func (r *Resolver) Resolve(ctx context.Context, recipientName string) (model.Resolution, error) {
	exp, err := r.explain(ctx, recipientName)
	if err != nil {
		return model.Resolution{}, err
	}

	top := 0
	if len(exp.Candidates) > 0 {
		top = exp.Candidates[0].Score
	}

	switch {
	case exp.Match != nil:
		r.logger.Info("folder match found",
			"recipient", recipientName,
			"folder", exp.Match.Folder.Name,
			"folderID", exp.Match.Folder.ID,
			"score", exp.Match.Score,
		)
		return model.Resolution{
			FolderID:   exp.Match.Folder.ID,
			FolderName: exp.Match.Folder.Name,
			Matched:    true,
			Score:      exp.Match.Score,
		}, nil

	case exp.CreateFolder:
		folder, err := r.store.CreateFolder(ctx, recipientName, r.opts.RootID)
		if err != nil {
			return model.Resolution{}, fmt.Errorf("create folder for %q: %w", recipientName, err)
		}
		r.remember(folder)
		r.logger.Info("no folder match, created recipient folder",
			"recipient", recipientName,
			"folderID", folder.ID,
			"score", top,
			"threshold", exp.Threshold,
		)
		return model.Resolution{
			FolderID:   folder.ID,
			FolderName: folder.Name,
			Matched:    true,
			Created:    true,
			Score:      top,
		}, nil
	}

	if len(exp.Ambiguous) > 0 {
		names := make([]string, 0, len(exp.Ambiguous))
		for _, c := range exp.Ambiguous {
			names = append(names, fmt.Sprintf("%s (%d)", c.Folder.Name, c.Score))
		}
		r.logger.Warn("ambiguous folder match, using default folder",
			"recipient", recipientName,
			"candidates", names,
			"threshold", exp.Threshold,
		)
	} else {
		r.logger.Warn("no folder match, using default folder",
			"recipient", recipientName,
			"score", top,
			"threshold", exp.Threshold,
		)
	}
	return model.Resolution{
		FolderID:   exp.DefaultFolder.ID,
		FolderName: exp.DefaultFolder.Name,
		Score:      top,
	}, nil
}

// Explain scores every candidate and reports the decision the policy takes.
// It may look up the default folder but never creates recipient folders.
func (r *Resolver) Explain(ctx context.Context, recipientName string) (Explanation, error) {
	return r.explain(ctx, recipientName)
}

func (r *Resolver) explain(ctx context.Context, recipientName string) (Explanation, error) {
	def, err := r.DefaultFolder(ctx)
	if err != nil {
		return Explanation{}, err
	}

	folders, err := r.folders(ctx)
	if err != nil {
		return Explanation{}, fmt.Errorf("list candidate folders: %w", err)
	}

	candidates := make([]model.Folder, 0, len(folders))
	for _, f := range folders {
		if f.ID == def.ID {
			continue
		}
		candidates = append(candidates, f)
	}

	names := make([]string, len(candidates))
	for i, f := range candidates {
		names[i] = f.Name
	}

	exp := Explanation{
		Policy:        r.opts.Policy,
		Threshold:     r.opts.Threshold,
		DefaultFolder: def,
	}
	for _, s := range match.Rank(recipientName, names) {
		exp.Candidates = append(exp.Candidates, Candidate{Folder: candidates[s.Index], Score: s.Score})
	}

	switch r.opts.Policy {
	case PolicyBest:
		if len(exp.Candidates) > 0 && exp.Candidates[0].Score >= r.opts.Threshold {
			best := exp.Candidates[0]
			exp.Match = &best
		} else {
			exp.CreateFolder = true
		}
	default:
		var qualified []Candidate
		for _, c := range exp.Candidates {
			if c.Score >= r.opts.Threshold {
				qualified = append(qualified, c)
			}
		}
		switch len(qualified) {
		case 0:
		case 1:
			exp.Match = &qualified[0]
		default:
			exp.Ambiguous = qualified
		}
	}
	return exp, nil
}

// DefaultFolder finds or creates the fallback folder once and caches it.
// A failed attempt is not cached.
func (r *Resolver) DefaultFolder(ctx context.Context) (model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaultFolder != nil {
		return *r.defaultFolder, nil
	}

	siblings, err := ListFlat(ctx, r.store, r.opts.RootID)
	if err != nil {
		return model.Folder{}, fmt.Errorf("look up default folder: %w", err)
	}
	for _, f := range siblings {
		if f.Name == r.opts.DefaultFolderName {
			r.defaultFolder = &f
			return f, nil
		}
	}

	created, err := r.store.CreateFolder(ctx, r.opts.DefaultFolderName, r.opts.RootID)
	if err != nil {
		return model.Folder{}, fmt.Errorf("create default folder: %w", err)
	}
	r.logger.Info("default folder created", "folder", created.Name, "folderID", created.ID)
	r.defaultFolder = &created
	return created, nil
}

func (r *Resolver) folders(ctx context.Context) ([]model.Folder, error) {
	r.mu.Lock()
	if r.opts.ReuseListing && r.listed {
		out := append([]model.Folder(nil), r.listing...)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	var (
		folders []model.Folder
		err     error
	)
	if r.opts.Recursive {
		folders, err = ListRecursive(ctx, r.store, r.opts.RootID)
	} else {
		folders, err = ListFlat(ctx, r.store, r.opts.RootID)
	}
	if err != nil {
		return nil, err
	}
	r.logger.Debug("folders listed", "count", len(folders), "recursive", r.opts.Recursive)

	if r.opts.ReuseListing {
		r.mu.Lock()
		r.listing = append([]model.Folder(nil), folders...)
		r.listed = true
		r.mu.Unlock()
	}
	return folders, nil
}

func (r *Resolver) remember(f model.Folder) {
	if !r.opts.ReuseListing {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listed {
		r.listing = append(r.listing, f)
	}
}
