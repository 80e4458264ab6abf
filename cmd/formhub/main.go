package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/config"
	"github.com/csuvg/PG-2025-21169/internal/database"
	"github.com/csuvg/PG-2025-21169/internal/dataset"
	"github.com/csuvg/PG-2025-21169/internal/export"
	"github.com/csuvg/PG-2025-21169/internal/form"
	"github.com/csuvg/PG-2025-21169/internal/httpx"
	"github.com/csuvg/PG-2025-21169/internal/mq"
	"github.com/csuvg/PG-2025-21169/internal/observability"
	"github.com/csuvg/PG-2025-21169/internal/versioning"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("formhub: connect database: %v", err)
	}

	err = database.Migrate(db,
		&form.Category{}, &form.Form{}, &form.Entry{},
		&catalog.FieldClass{}, &catalog.Field{}, &catalog.Group{}, &catalog.GroupMember{},
		&dataset.Source{}, &dataset.Value{},
		&versioning.FormVersion{}, &versioning.FormVersionLink{},
		&versioning.Page{}, &versioning.PagePointer{},
		&versioning.PageVersion{}, &versioning.PageField{},
	)
	if err != nil {
		log.Fatalf("formhub: run migrations: %v", err)
	}
	if err := seedClasses(db); err != nil {
		log.Fatalf("formhub: seed field classes: %v", err)
	}

	blobs, err := dataset.NewDirBlobStorage(cfg.BlobDir)
	if err != nil {
		log.Fatalf("formhub: init blob storage: %v", err)
	}

	var events versioning.EventPublisher
	if cfg.EventsEnabled() {
		producer, err := mq.NewProducer(mq.ProducerConfig{
			Brokers:  cfg.Brokers(),
			Topic:    cfg.KafkaTopic,
			ClientID: cfg.ServiceName,
		})
		if err != nil {
			log.Fatalf("formhub: init event producer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := producer.Close(ctx); err != nil {
				log.Printf("formhub: close event producer: %v", err)
			}
		}()
		events = producer
	}

	materializer := dataset.NewMaterializer(blobs)
	catalogSvc := catalog.NewService(catalog.DefaultTypePolicy(), materializer)
	engine := versioning.NewEngine(db, catalogSvc, events)
	formSvc := form.NewService(db, engine)
	sourceSvc := dataset.NewService(blobs)
	exportSvc := export.NewService(db)

	server := httpx.New()
	observability.RegisterMetricsEndpoint(server.Router)
	server.Router.Route("/api", func(r chi.Router) {
		form.RegisterRoutes(r, formSvc, engine)
		versioning.RegisterRoutes(r, engine)
		catalog.RegisterRoutes(r, catalogSvc, db)
		dataset.RegisterRoutes(r, sourceSvc, db)
		export.RegisterRoutes(r, exportSvc)
	})

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Printf("formhub listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("formhub stopped: %v", err)
		}
	case <-ctx.Done():
		log.Print("formhub: shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("formhub: shutdown: %v", err)
		}
	}
}

// seedClasses inserts the default field classes, skipping any already
// registered.
func seedClasses(db *gorm.DB) error {
	classes := catalog.DefaultClasses()
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&classes).Error
}
