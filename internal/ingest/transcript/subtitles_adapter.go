package transcript

import (
	"context"

	"podingest/internal/subtitles"
)

// SubtitlesClientAdapter narrows an internal/subtitles.Client down to the
// SubtitleSearcher interface this package depends on, and resolves the
// "best" candidate (highest download count, not machine-translated when an
// alternative exists) on the caller's behalf.
type SubtitlesClientAdapter struct {
	Client    *subtitles.Client
	Languages []string
}

func (a *SubtitlesClientAdapter) Search(ctx context.Context, query string, languages []string) (int64, bool, error) {
	if len(languages) == 0 {
		languages = a.Languages
	}
	resp, err := a.Client.Search(ctx, subtitles.SearchRequest{Query: query, Languages: languages})
	if err != nil {
		return 0, false, err
	}
	if len(resp.Subtitles) == 0 {
		return 0, false, nil
	}
	best := resp.Subtitles[0]
	for _, candidate := range resp.Subtitles[1:] {
		if best.AITranslated && !candidate.AITranslated {
			best = candidate
			continue
		}
		if candidate.AITranslated && !best.AITranslated {
			continue
		}
		if candidate.Downloads > best.Downloads {
			best = candidate
		}
	}
	return best.FileID, true, nil
}

func (a *SubtitlesClientAdapter) Download(ctx context.Context, fileID int64) ([]byte, error) {
	result, err := a.Client.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
