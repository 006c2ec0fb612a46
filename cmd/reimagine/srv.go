package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"reimagine/internal/blobstore"
	"reimagine/internal/config"
	"reimagine/internal/gallery"
	"reimagine/internal/provider"
	"reimagine/internal/server"
	"reimagine/internal/store"
)

// providerTimeout bounds one provider exchange. Generations are not tied to
// the requesting client, so this is their only deadline.
const providerTimeout = 5 * time.Minute

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the reimagine API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.Default()
			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "driver", cfg.DBDriver, "path", cfg.DBPath)
			st, err := store.OpenWithOptions(storeOptions(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := openBlobStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer blobs.Close()
			logger.Info("opened blob store", "backend", cfg.Blobs.Backend)

			httpClient := &http.Client{Timeout: providerTimeout}
			p, err := provider.New(provider.Config{
				Name:    cfg.Provider.Name,
				Model:   cfg.Provider.Model,
				BaseURL: cfg.Provider.BaseURL,
				Mode:    cfg.Provider.Mode,
			}, httpClient)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			sweepMinAge, err := cfg.SweepMinAge()
			if err != nil {
				return err
			}
			svc := gallery.NewService(st, blobs, p, gallery.Options{
				MaxUploadBytes: cfg.Uploads.MaxUploadBytes,
				SweepMinAge:    sweepMinAge,
				HTTPClient:     httpClient,
				Logger:         logger,
				Metrics:        gallery.NewMetrics(reg),
			})

			stopSweeper, err := startSweeper(cfg, svc, logger)
			if err != nil {
				return err
			}
			defer stopSweeper()

			return server.New(addr, svc, reg, logger).Serve(cmd.Context())
		},
	}
}

func storeOptions(cfg *config.Config) store.Options {
	return store.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN}
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.Blobs.Backend {
	case config.BlobBackendLocal:
		return blobstore.NewLocalFS(cfg.Blobs.Root)
	case config.BlobBackendBolt:
		return blobstore.NewBoltStore(cfg.Blobs.BoltPath)
	case config.BlobBackendS3:
		if ctx == nil {
			ctx = context.Background()
		}
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:       cfg.Blobs.S3Bucket,
			Region:       cfg.Blobs.S3Region,
			Endpoint:     cfg.Blobs.S3Endpoint,
			Prefix:       cfg.Blobs.S3Prefix,
			UsePathStyle: cfg.Blobs.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blobs.Backend)
	}
}
