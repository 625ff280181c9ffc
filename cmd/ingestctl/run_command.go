package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"podingest/internal/config"
	"podingest/internal/ingest/diarize"
	"podingest/internal/ingest/embed"
	"podingest/internal/ingest/fetch"
	"podingest/internal/ingest/segment"
	"podingest/internal/ingest/source"
	"podingest/internal/ingest/speaker"
	"podingest/internal/ingest/transcript"
	"podingest/internal/logging"
	"podingest/internal/modelrt"
	"podingest/internal/orchestrator"
	"podingest/internal/report"
	"podingest/internal/store"
	"podingest/internal/subtitles"
)

func newRunCommand(cfgRef **config.Config) *cobra.Command {
	var channelRef string
	var since string
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover and ingest new episodes from a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *cfgRef
			if channelRef == "" {
				channelRef = cfg.SourceChannelID
			}
			if channelRef == "" {
				return fmt.Errorf("no channel configured: set source_channel_id or pass --channel")
			}
			if limit <= 0 {
				limit = cfg.SourceListLimit
			}

			runLock, err := orchestrator.AcquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer runLock.Release()

			db, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			orch, err := buildOrchestrator(cfg, db)
			if err != nil {
				return err
			}

			opts := source.Options{Limit: limit, SkipShorts: cfg.SkipShorts}
			if since != "" {
				parsed, parseErr := time.Parse("2006-01-02", since)
				if parseErr != nil {
					return fmt.Errorf("invalid --since date %q: %w", since, parseErr)
				}
				opts.Since = &parsed
			}

			descriptors, listErr := orch.Lister.List(cmd.Context(), channelRef, opts)
			if listErr != nil {
				return fmt.Errorf("list sources: %w", listErr)
			}

			bar := progressbar.NewOptions(len(descriptors),
				progressbar.OptionSetDescription("ingesting sources"),
				progressbar.OptionSetWriter(cmd.OutOrStdout()),
				progressbar.OptionShowCount(),
			)
			orch.OnSourceComplete = func() { _ = bar.Add(1) }

			runErr := orch.RunSources(cmd.Context(), descriptors)
			fmt.Fprintln(cmd.OutOrStdout())

			summary, summaryErr := report.Build(cmd.Context(), db, 10)
			if summaryErr == nil {
				fmt.Fprintln(cmd.OutOrStdout())
				report.Render(cmd.OutOrStdout(), summary)
			}

			return runErr
		},
	}
	cmd.Flags().StringVar(&channelRef, "channel", "", "Channel reference to ingest (defaults to config)")
	cmd.Flags().StringVar(&since, "since", "", "Only list videos published on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of videos to list (defaults to config)")
	return cmd
}

// buildOrchestrator wires C1-C8 into a pipeline orchestrator against cfg.
func buildOrchestrator(cfg *config.Config, db *store.Store) (*orchestrator.Orchestrator, error) {
	slogLogger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}

	ytdlpBackend := source.NewYtDlpBackend(cfg.YtDlpBinary())
	lister := &source.Lister{
		Scrape:                 ytdlpBackend,
		TextEmbeddingModelKey:  cfg.TextEmbeddingModelKey,
		VoiceEmbeddingModelKey: "pyannote-voice-embedding",
		Logger:                 slogLogger,
	}

	downloader := fetch.NewYtDlpDownloader(cfg.YtDlpBinary())
	fetcher := fetch.NewFetcher(downloader, cfg.FFprobeBinary(), cfg.StagingDir, cfg.AudioDir,
		float64(cfg.MaxAudioDurationSec), cfg.FetchMaxRetries)

	captionBackend := transcript.NewYtDlpCaptionBackend(cfg.YtDlpBinary(), cfg.StagingDir)
	var asr modelrt.ASR
	if cfg.WhisperXModel != "" {
		asr = modelrt.NewWhisperXASR(cfg.WhisperXModel, cfg.WhisperXCUDAEnabled, cfg.WhisperXVADMethod,
			cfg.FFmpegBinary(), cfg.WhisperXCacheDir, cfg.HuggingFaceToken)
	} else if cfg.RemoteASRAPIKey != "" {
		asr = modelrt.NewOpenAIASR(cfg.RemoteASRAPIKey, cfg.RemoteASRBaseURL, cfg.RemoteASRModel)
	}

	acquirer := &transcript.Acquirer{
		Captions:         captionBackend,
		SubtitlesEnabled: cfg.SubtitlesEnabled,
		ASR:              asr,
	}
	if cfg.SubtitlesEnabled && cfg.OpenSubtitlesAPIKey != "" {
		client, clientErr := subtitles.NewClient(subtitles.ClientConfig{
			APIKey:    cfg.OpenSubtitlesAPIKey,
			UserAgent: cfg.OpenSubtitlesUserAgent,
			UserToken: cfg.OpenSubtitlesUserToken,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("build subtitles client: %w", clientErr)
		}
		acquirer.Subtitles = &transcript.SubtitlesClientAdapter{Client: client, Languages: cfg.OpenSubtitlesLanguages}
	}

	voiceEmbedder := modelrt.NewPyannoteVoiceEmbedder(cfg.HuggingFaceToken, cfg.WhisperXCUDAEnabled, cfg.WhisperXCacheDir)
	diarizer := &diarize.Diarizer{
		Model:  modelrt.NewPyannoteDiarizer(cfg.HuggingFaceToken, cfg.WhisperXCUDAEnabled, cfg.ChaffeeMinSimilarity, cfg.WhisperXCacheDir),
		Embed:  voiceEmbedder,
		Logger: slogLogger,
	}
	diarizeOpts := diarize.DefaultOptions()
	diarizeOpts.AssumeMonologue = cfg.AssumeMonologue

	profiles, err := store.LoadVoiceProfiles(cfg.VoiceProfileDir)
	if err != nil {
		return nil, fmt.Errorf("load voice profiles: %w", err)
	}
	identifier := &speaker.Identifier{
		Embed:       voiceEmbedder,
		Profiles:    profiles,
		PrimaryName: cfg.PrimaryVoiceProfileName,
		Thresholds: speaker.Thresholds{
			PrimaryMinSimilarity: cfg.ChaffeeMinSimilarity,
			GuestMinSimilarity:   cfg.GuestMinSimilarity,
			Margin:               cfg.AttributionMargin,
		},
	}

	var primaryCentroid []float32
	if p, ok := profiles.ByName(cfg.PrimaryVoiceProfileName); ok {
		primaryCentroid = p.Centroid
	}

	geometry := segment.Geometry{
		MinChars:            cfg.SegmentMinChars,
		MaxChars:             cfg.SegmentMaxChars,
		HardCapChars:         cfg.SegmentHardCapChars,
		MaxGapSec:            cfg.SegmentMaxGapSec,
		MaxMergeDurationSec:  cfg.SegmentMaxMergeDurationSec,
	}

	var textEmbedModel modelrt.TextEmbedder
	if cfg.TextEmbeddingAPIKey != "" {
		textEmbedModel = modelrt.NewOpenAIEmbedder(cfg.TextEmbeddingAPIKey, cfg.TextEmbeddingBaseURL,
			cfg.TextEmbeddingModelKey, cfg.TextEmbeddingDimensions)
	} else {
		textEmbedModel = modelrt.NewLocalTextEmbedder(cfg.TextEmbeddingModelKey, cfg.TextEmbeddingDimensions,
			cfg.WhisperXCUDAEnabled, cfg.WhisperXCacheDir)
	}
	embedder := &embed.Embedder{Model: textEmbedModel}
	embedOpts := embed.DefaultOptions()
	embedOpts.PartialPersistOnFailure = cfg.PartialPersistOnEmbeddingFailure
	embedOpts.ExpectedDimension = cfg.TextEmbeddingDimensions

	return &orchestrator.Orchestrator{
		Store:                   db,
		Lister:                  lister,
		Fetcher:                 fetcher,
		Transcripts:             acquirer,
		Diarizer:                diarizer,
		Identifier:              identifier,
		Segmenter:               geometry,
		Embedder:                embedder,
		EmbedOptions:            embedOpts,
		Logger:                  slogLogger,
		Pools:                   orchestrator.Pools{IOWorkers: cfg.IOWorkers, GPUWorkers: cfg.GPUWorkers, DBWorkers: cfg.DBWorkers},
		Timeouts:                orchestrator.DefaultTimeouts(),
		PrimaryProfileCentroid:  primaryCentroid,
		DiarizeOptions:          diarizeOpts,
		HeartbeatInterval:       time.Duration(cfg.StageHeartbeatInterval) * time.Second,
		HeartbeatTimeout:        time.Duration(cfg.StageHeartbeatTimeout) * time.Second,
	}, nil
}
