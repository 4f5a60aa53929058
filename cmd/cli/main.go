package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/audionautics/wavemark/internal/storage"
	"github.com/audionautics/wavemark/pkg/logger"
	"github.com/audionautics/wavemark/pkg/wavemark"
)

// Global flags
var (
	dbPath  string
	backend string
	verbose bool
)

func init() {
	godotenv.Load()
	flag.StringVar(&dbPath, "db", getEnvOrDefault("WAVEMARK_DB", "wavemark.sqlite3"), "Path to the catalog database (file for sqlite, directory for badger)")
	flag.StringVar(&backend, "backend", getEnvOrDefault("WAVEMARK_BACKEND", "sqlite"), "Storage backend: sqlite or badger")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService opens the selected store, builds the engine and restores
// the in-memory index from the catalog.
func createService(ctx context.Context) (wavemark.Service, error) {
	var (
		store wavemark.Store
		err   error
	)
	switch backend {
	case "sqlite":
		store, err = storage.OpenSQLite(dbPath)
	case "badger":
		store, err = storage.OpenBadger(dbPath)
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite or badger)", backend)
	}
	if err != nil {
		return nil, err
	}

	level := "info"
	if verbose {
		level = "debug"
	}
	svc, err := wavemark.New(
		wavemark.WithStore(store),
		wavemark.WithLogger(logger.New(level)),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := svc.Restore(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "ingest":
		handleIngest(args[1:])
	case "identify":
		handleIdentify(args[1:])
	case "list":
		handleList()
	case "delete":
		handleDelete(args[1:])
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func handleIngest(args []string) {
	cmd := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := cmd.String("file", "", "Audio file to ingest (.wav or .mp3)")
	dir := cmd.String("dir", "", "Ingest every supported file under this directory")
	title := cmd.String("title", "", "Track title (defaults to embedded tags, then file name)")
	artist := cmd.String("artist", "", "Artist name (defaults to embedded tags)")
	cmd.Parse(args)

	if (*file == "") == (*dir == "") {
		fmt.Println("Error: exactly one of -file or -dir is required")
		cmd.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	svc, err := createService(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	if *file != "" {
		track, err := svc.IngestFile(ctx, *file, *title, *artist)
		if err != nil {
			fmt.Printf("Failed to ingest %s: %v\n", *file, err)
			os.Exit(1)
		}
		fmt.Println("Ingested track:")
		printTrack(track)
		return
	}

	paths, err := collectAudioFiles(*dir)
	if err != nil {
		fmt.Printf("Failed to scan %s: %v\n", *dir, err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Printf("No .wav or .mp3 files under %s\n", *dir)
		return
	}

	progress := mpb.New(mpb.WithWidth(48))
	bar := progress.AddBar(int64(len(paths)),
		mpb.PrependDecorators(
			decor.Name("ingesting "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	var failed int
	for _, path := range paths {
		if _, err := svc.IngestFile(ctx, path, "", ""); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
		}
		bar.Increment()
	}
	progress.Wait()

	fmt.Printf("Ingested %d track(s)", len(paths)-failed)
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
}

// collectAudioFiles walks dir and returns supported audio files in sorted
// order.
func collectAudioFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".mp3":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func handleIdentify(args []string) {
	cmd := flag.NewFlagSet("identify", flag.ExitOnError)
	file := cmd.String("file", "", "Audio clip to identify")
	limit := cmd.Int("limit", 5, "Maximum matches to display")
	cmd.Parse(args)

	if *file == "" {
		fmt.Println("Error: -file is required")
		cmd.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc, err := createService(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	matches, err := svc.IdentifyFile(ctx, *file)
	if err != nil {
		fmt.Printf("Failed to identify %s: %v\n", *file, err)
		os.Exit(1)
	}
	if len(matches) == 0 {
		fmt.Println("No matches found")
		return
	}

	if len(matches) > *limit {
		matches = matches[:*limit]
	}
	fmt.Printf("Found %d match(es):\n\n", len(matches))
	for i, m := range matches {
		name := m.Track.Title
		if name == "" {
			name = m.Track.ID
		}
		fmt.Printf("%d. %q", i+1, name)
		if m.Track.Artist != "" {
			fmt.Printf(" by %s", m.Track.Artist)
		}
		fmt.Println()
		fmt.Printf("   Score: %d/%d | Confidence: %.1f%% | Offset: %.2fs\n",
			m.Score, m.TotalHashes, m.Confidence*100, m.OffsetSeconds)
	}
}

func handleList() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc, err := createService(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	tracks, err := svc.ListTracks(ctx)
	if err != nil {
		fmt.Printf("Failed to list tracks: %v\n", err)
		os.Exit(1)
	}
	if len(tracks) == 0 {
		fmt.Println("No tracks in catalog")
		return
	}

	fmt.Printf("%d track(s):\n\n", len(tracks))
	for i, track := range tracks {
		fmt.Printf("%d. ", i+1)
		printTrack(track)
	}
}

func printTrack(t wavemark.Track) {
	fmt.Printf("%q", t.Title)
	if t.Artist != "" {
		fmt.Printf(" by %s", t.Artist)
	}
	fmt.Println()
	fmt.Printf("   ID: %s\n", t.ID)
	if t.Duration > 0 {
		secs := int(t.Duration)
		fmt.Printf("   Duration: %d:%02d\n", secs/60, secs%60)
	}
}

func handleDelete(args []string) {
	cmd := flag.NewFlagSet("delete", flag.ExitOnError)
	id := cmd.String("id", "", "Track ID to delete")
	cmd.Parse(args)

	if *id == "" {
		fmt.Println("Error: -id is required")
		cmd.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc, err := createService(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	track, err := svc.GetTrack(ctx, *id)
	if err != nil {
		fmt.Printf("Track not found: %s\n", *id)
		os.Exit(1)
	}
	if err := svc.DeleteTrack(ctx, *id); err != nil {
		fmt.Printf("Failed to delete track: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Deleted track:")
	printTrack(track)
}

func handleStats() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	svc, err := createService(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	stats, err := svc.Stats(ctx)
	if err != nil {
		fmt.Printf("Failed to read stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Index:")
	fmt.Printf("   Tracks:      %s\n", humanize.Comma(int64(stats.Index.Tracks)))
	fmt.Printf("   Hashes:      %s\n", humanize.Comma(int64(stats.Index.Hashes)))
	fmt.Printf("   Occurrences: %s\n", humanize.Comma(int64(stats.Index.Occurrences)))
	if stats.Store != nil {
		fmt.Println("Store:")
		fmt.Printf("   Tracks:  %s\n", humanize.Comma(int64(stats.Store.Tracks)))
		fmt.Printf("   Entries: %s\n", humanize.Comma(int64(stats.Store.Entries)))
	}
}

func printUsage() {
	fmt.Println("wavemark - audio fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path>        Catalog database path (env: WAVEMARK_DB, default: wavemark.sqlite3)")
	fmt.Println("  -backend <name>   Storage backend, sqlite or badger (env: WAVEMARK_BACKEND)")
	fmt.Println("  -v                Debug logging")
	fmt.Println("\nUsage:")
	fmt.Println("  wavemark [global-options] ingest -file <audio> [-title <title>] [-artist <artist>]")
	fmt.Println("  wavemark [global-options] ingest -dir <directory>")
	fmt.Println("  wavemark [global-options] identify -file <audio> [-limit <n>]")
	fmt.Println("  wavemark [global-options] list")
	fmt.Println("  wavemark [global-options] delete -id <track_id>")
	fmt.Println("  wavemark [global-options] stats")
	fmt.Println("\nExamples:")
	fmt.Println("  wavemark -db library.sqlite3 ingest -dir ./music")
	fmt.Println("  wavemark -backend badger -db ./library identify -file clip.wav")
}
