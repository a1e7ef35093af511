package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/contentoor/pkg/contentdiff"
	"github.com/ethpandaops/contentoor/pkg/github"
)

const diffConcurrency = 8

// diffFiles fetches both sides of every content file in parallel and diffs
// them. A side that is missing on its ref is treated as absent.
func (m *Manager) diffFiles(
	ctx context.Context,
	client RepoClient,
	repo, base, head string,
	files []github.CompareFile,
) ([]*contentdiff.ContentDiff, error) {
	type target struct {
		file       github.CompareFile
		collection string
		slug       string
	}

	targets := make([]target, 0, len(files))

	for _, f := range files {
		collection, slug, ok := ParseContentPath(m.cfg.ContentRoot, f.Filename)
		if !ok {
			continue
		}

		targets = append(targets, target{file: f, collection: collection, slug: slug})
	}

	diffs := make([]*contentdiff.ContentDiff, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(diffConcurrency)

	for i, t := range targets {
		g.Go(func() error {
			var oldDoc, newDoc *string

			sides, sctx := errgroup.WithContext(gctx)

			if t.file.Status != github.FileAdded {
				oldPath := t.file.Filename
				if t.file.PreviousFilename != "" {
					oldPath = t.file.PreviousFilename
				}

				sides.Go(func() error {
					doc, err := readOptional(sctx, client, repo, oldPath, base)
					oldDoc = doc

					return err
				})
			}

			if t.file.Status != github.FileRemoved {
				sides.Go(func() error {
					doc, err := readOptional(sctx, client, repo, t.file.Filename, head)
					newDoc = doc

					return err
				})
			}

			if err := sides.Wait(); err != nil {
				return err
			}

			diffs[i] = contentdiff.Compute(t.collection, t.slug, oldDoc, newDoc, m.cfg.MaxDiffTokens)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return diffs, nil
}

func readOptional(
	ctx context.Context, client RepoClient, repo, p, ref string,
) (*string, error) {
	f, err := client.GetFile(ctx, repo, p, ref)
	if err != nil {
		if github.IsNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading %s on %s: %w", p, ref, err)
	}

	return &f.Content, nil
}
