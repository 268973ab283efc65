package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/carlmjohnson/versioninfo"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/avlasov/farmmap/internal/access"
	"github.com/avlasov/farmmap/internal/config"
	"github.com/avlasov/farmmap/internal/database"
	"github.com/avlasov/farmmap/internal/database/repository"
	"github.com/avlasov/farmmap/internal/farms"
	"github.com/avlasov/farmmap/internal/geocode"
	"github.com/avlasov/farmmap/internal/host"
	"github.com/avlasov/farmmap/internal/remote"
	"github.com/avlasov/farmmap/internal/syncer"
	"github.com/avlasov/farmmap/internal/tui"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("farmmap", versioninfo.Short())
		return
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// First run: write the defaults out so there is a file to edit.
	if _, err := os.Stat(config.Path()); errors.Is(err, fs.ErrNotExist) {
		if err := config.Save(cfg); err != nil {
			log.Printf("warn: write default config: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// repositories
	queueRepo := repository.NewQueueRepo(db)
	sessionRepo := repository.NewSessionRepo(db)
	snapshotRepo := repository.NewSnapshotRepo(db)

	gate, err := access.Load(ctx, sessionRepo)
	if err != nil {
		log.Fatalf("load session: %v", err)
	}
	if id, ok := host.FromEnv(); ok {
		if err := gate.AdoptHostIdentity(ctx, id); err != nil {
			log.Printf("warn: host identity not persisted: %v", err)
		}
	}

	catalog := farms.NewCatalog()
	coordinator := &syncer.Coordinator{
		Client:      remote.NewClient(cfg.API.ScriptURL),
		Catalog:     catalog,
		Gate:        gate,
		Queue:       queueRepo,
		Snapshots:   snapshotRepo,
		Maintenance: repository.NewMaintenanceRepo(db),
		MaxReviews:  cfg.Moderation.MaxReviewsPerFarm,
		Opts: syncer.Options{
			Retention:   cfg.Queue.Retention(),
			MaxRetries:  cfg.Queue.MaxRetries,
			CacheMaxAge: cfg.Cache.MaxAge(),
		},
	}

	p := tea.NewProgram(tui.New(ctx, tui.Deps{
		Coordinator:   coordinator,
		Catalog:       catalog,
		Gate:          gate,
		Geocoder:      geocode.NewClient(cfg.API.PostcodesURL),
		FlagThreshold: cfg.Moderation.FlagThreshold,
	}), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}
