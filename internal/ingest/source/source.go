// Package source implements the Source Lister (C1): it enumerates candidate
// audio sources from a channel reference and normalizes them into Descriptor
// values, tolerating two backend modes (an authenticated metadata API and a
// scraping fallback) the way spec.md §4.1 requires.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podingest/internal/services"
)

// Descriptor is the normalized shape both backends must produce (spec.md
// §6's "Inputs to the core").
type Descriptor struct {
	ExternalID      string
	Title           string
	PublishedAt     time.Time
	DurationSec     float64
	IsLiveOrUpcoming bool
	IsMembersOnly   bool
	HasOwnerCaptions bool
}

// MetadataBackend is the authenticated metadata API mode.
type MetadataBackend interface {
	ListChannel(ctx context.Context, channelRef string, since *time.Time, limit int) ([]Descriptor, error)
}

// ScrapeBackend is the unauthenticated scraping fallback mode.
type ScrapeBackend interface {
	ListChannel(ctx context.Context, channelRef string, since *time.Time, limit int) ([]Descriptor, error)
}

// Lister enumerates Sources for a channel, deduplicating by external id and
// applying the skip rules of spec.md §4.1.
type Lister struct {
	Metadata                     MetadataBackend
	Scrape                       ScrapeBackend
	TextEmbeddingModelKey        string
	VoiceEmbeddingModelKey       string
	Logger                       *slog.Logger
}

// Options controls one List call.
type Options struct {
	Since      *time.Time
	Limit      int
	SkipShorts bool
}

const minDurationForSkipShorts = 120.0 // seconds; strict inequality at the boundary (spec.md §8)

// List enumerates sources for a channel, preferring the metadata backend and
// falling back to scraping; it fails with SourceDiscoveryError only if both
// backends fail (spec.md §4.1).
func (l *Lister) List(ctx context.Context, channelRef string, opts Options) ([]Descriptor, error) {
	var (
		descriptors        []Descriptor
		metaErr, scrapeErr error
	)

	if l.Metadata != nil {
		descriptors, metaErr = l.Metadata.ListChannel(ctx, channelRef, opts.Since, opts.Limit)
	}
	if metaErr != nil || l.Metadata == nil {
		if l.Scrape != nil {
			var scraped []Descriptor
			scraped, scrapeErr = l.Scrape.ListChannel(ctx, channelRef, opts.Since, opts.Limit)
			if metaErr != nil && len(descriptors) > 0 {
				// The preferred backend partially succeeded before failing;
				// surface its results alongside the fallback's instead of
				// discarding them (spec.md §4.1).
				if l.Logger != nil {
					l.Logger.Warn("metadata backend failed after partial results, merging with scrape fallback",
						"channel", channelRef, "partial_count", len(descriptors), "error", metaErr)
				}
				descriptors = append(descriptors, scraped...)
			} else {
				if metaErr != nil && l.Logger != nil {
					l.Logger.Warn("metadata backend failed, falling back to scrape",
						"channel", channelRef, "error", metaErr)
				}
				descriptors = scraped
			}
		}
	}

	if (l.Metadata == nil || metaErr != nil) && (l.Scrape == nil || scrapeErr != nil) && len(descriptors) == 0 {
		joined := errors.Join(metaErr, scrapeErr)
		return nil, services.Wrap(services.ErrSourceDiscoveryError, "list", channelRef,
			"both metadata and scrape backends failed", joined)
	}

	return dedupeAndFilter(descriptors, opts), nil
}

func dedupeAndFilter(descriptors []Descriptor, opts Options) []Descriptor {
	seen := make(map[string]struct{}, len(descriptors))
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.ExternalID == "" {
			continue
		}
		if _, ok := seen[d.ExternalID]; ok {
			continue
		}
		seen[d.ExternalID] = struct{}{}
		if d.IsLiveOrUpcoming || d.IsMembersOnly {
			continue
		}
		if opts.SkipShorts && d.DurationSec < minDurationForSkipShorts {
			continue
		}
		out = append(out, d)
	}
	// Newest-first by default (spec.md §4.1 "Ordering policy").
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].PublishedAt.After(out[j-1].PublishedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// ContentFingerprint computes the hash spec.md §3 defines: "a hash over
// external id + chosen model identifiers." Per the Open Question decision
// in DESIGN.md, the voice-embedding model key is included alongside the
// text-embedding model key so a model upgrade on either side forces
// reprocessing rather than silently reusing stale cached embeddings.
func (l *Lister) ContentFingerprint(externalID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", externalID, l.TextEmbeddingModelKey, l.VoiceEmbeddingModelKey)))
	return hex.EncodeToString(sum[:])
}
