package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaverqa/weaver/internal/model"
)

// Options control event splitting.
type Options struct {
	// Mapping holds explicit RELEASE=COMPOSE pairs replacing the
	// built-in derivation chain.
	Mapping []string

	// Dedup collapses advisory releases mapping to the same compose.
	// Off by default since it changes which tracking issues get created.
	Dedup bool

	Log *slog.Logger
}

// Split resolves one event into its artifact jobs. An advisory yields
// one job per release (per build for container advisories); compose,
// tracker-issue and merge-request events yield exactly one job.
func Split(ctx context.Context, ev model.Event, src Source, opts Options) ([]model.ArtifactJob, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	switch ev.Type {
	case model.EventErratum:
		return splitAdvisory(ctx, ev, src, opts, log)

	case model.EventCompose:
		compose, err := src.FetchCompose(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch compose %s: %w", ev.ID, err)
		}
		return []model.ArtifactJob{{Event: ev, Compose: compose}}, nil

	case model.EventJira:
		if _, err := src.FetchTrackerIssue(ctx, ev.ID); err != nil {
			return nil, fmt.Errorf("fetch tracker issue %s: %w", ev.ID, err)
		}
		return []model.ArtifactJob{{Event: ev}}, nil

	case model.EventRoG:
		mr, err := src.FetchMergeRequest(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch merge request %s: %w", ev.ID, err)
		}
		compose, err := DeriveCompose(mr.BuildTarget, opts.Mapping)
		if err != nil {
			return nil, err
		}
		return []model.ArtifactJob{{
			Event:        ev,
			Compose:      &model.Compose{ID: compose},
			MergeRequest: mr,
		}}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", ev.Type)
}

func splitAdvisory(ctx context.Context, ev model.Event, src Source, opts Options, log *slog.Logger) ([]model.ArtifactJob, error) {
	errata, err := src.FetchAdvisory(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch advisory %s: %w", ev.ID, err)
	}
	if opts.Dedup {
		errata, err = DeduplicateReleases(errata, opts.Mapping)
		if err != nil {
			return nil, err
		}
	}

	var jobs []model.ArtifactJob
	for _, erratum := range errata {
		compose, err := DeriveCompose(erratum.Release, opts.Mapping)
		if err != nil {
			return nil, err
		}
		if compose == "" {
			log.Warn("release maps to an empty compose, skipping",
				"release", erratum.Release)
			continue
		}
		log.Info("derived compose for release",
			"release", erratum.Release, "compose", compose)

		switch erratum.ContentType {
		case model.ContentDocker:
			// container advisories split per build
			for _, build := range erratum.Builds {
				clone := erratum
				clone.Builds = []string{build}
				clone.Components = []string{model.ParseNVR(build).Name}
				e := clone
				jobs = append(jobs, model.ArtifactJob{
					Event:   ev,
					Erratum: &e,
					Compose: &model.Compose{ID: compose},
				})
			}
		default:
			e := erratum
			jobs = append(jobs, model.ArtifactJob{
				Event:   ev,
				Erratum: &e,
				Compose: &model.Compose{ID: compose},
			})
		}
	}
	return jobs, nil
}
