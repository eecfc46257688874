package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/upload"
)

func main() {
	var (
		server      = flag.String("server", "http://localhost:8080", "API base URL")
		token       = flag.String("token", "", "bearer token, if the server requires one")
		file        = flag.String("file", "", "path of the media file to upload")
		title       = flag.String("title", "", "asset title")
		description = flag.String("desc", "", "asset description")
		kind        = flag.String("kind", "image", "media kind: image or video")
		effectsFlag = flag.String("effects", "", "comma-separated effect ids to apply after upload")
		timeout     = flag.Duration("timeout", 300*time.Second, "request timeout")
		listEffects = flag.Bool("list-effects", false, "print the effect catalog and exit")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[mediactl] ", log.LstdFlags|log.Lmsgprefix)

	client := upload.NewClient(upload.ClientConfig{
		BaseURL: *server,
		Token:   *token,
		Timeout: *timeout,
	})
	ctx := context.Background()

	if *listEffects {
		printEffects(ctx, logger, client)
		return
	}

	if *file == "" {
		logger.Fatal("usage: mediactl -file <path> -title <title> [-effects sepia,thumbnail]")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read file: %v", err)
	}

	job := upload.NewJob(data, *file, *title)
	job.Description = *description
	job.Kind = domain.ParseKind(*kind)

	tracker := upload.NewTracker(client, 0)
	go printEvents(tracker.Events())

	asset, err := tracker.Submit(ctx, job)
	if err != nil {
		logger.Fatalf("upload failed [%s]: %s", domain.CodeOf(err), domain.MessageOf(err))
	}
	fmt.Printf("uploaded %s (%d bytes)\n", asset.Identifier, asset.OriginalSize)

	if ids := splitEffects(*effectsFlag); len(ids) > 0 {
		result, err := tracker.ApplyEffects(ctx, ids)
		if err != nil {
			logger.Fatalf("transform failed [%s]: %s", domain.CodeOf(err), domain.MessageOf(err))
		}
		fmt.Printf("original:    %s\n", result.OriginalURL)
		fmt.Printf("transformed: %s\n", result.TransformedURL)
		fmt.Printf("descriptor:  %s\n", result.TransformationString)
		if result.EstimatedCompression != "0%" {
			fmt.Printf("estimated compression: %s\n", result.EstimatedCompression)
		}
	}

	// Give the event printer a beat to flush before exiting.
	time.Sleep(50 * time.Millisecond)
}

func printEvents(events <-chan upload.Event) {
	for ev := range events {
		switch {
		case ev.State == upload.StateUploading && ev.Progress > 0:
			fmt.Printf("\ruploading %3d%%", ev.Progress)
			if ev.Progress == 100 {
				fmt.Println()
			}
		case ev.State == upload.StateFailed:
			fmt.Printf("\nfailed [%s] %s\n", ev.Code, ev.Message)
		default:
			fmt.Printf("state: %s\n", ev.State)
		}
	}
}

func printEffects(ctx context.Context, logger *log.Logger, client *upload.Client) {
	listing, err := client.Effects(ctx)
	if err != nil {
		logger.Fatalf("fetch effects [%s]: %s", domain.CodeOf(err), domain.MessageOf(err))
	}
	for category, ids := range listing {
		fmt.Println(category)
		for id, value := range ids {
			fmt.Printf("  %-18s %s\n", id, value)
		}
	}
}

func splitEffects(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
