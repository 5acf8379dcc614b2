package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"music-locker/internal/auth"
	"music-locker/internal/config"
	"music-locker/internal/downloader"
	apphttp "music-locker/internal/http"
	"music-locker/internal/metadata"
	"music-locker/internal/repository/sqlite"
	"music-locker/internal/service"
	"music-locker/internal/storage"
	"music-locker/internal/transcode"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	songRepo := sqlite.NewSongRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := songRepo.Init(ctx); err != nil {
		logger.Fatalf("init song repository: %v", err)
	}

	files, err := storage.NewLocal(cfg.Storage.Dir)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	logger.Infof("storing songs in %s", files.Root())

	mirror, err := buildMirror(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup mirror: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatalf("setup tokens: %v", err)
	}

	userService := service.NewUserService(userRepo)
	songService := service.NewSongService(songRepo, files, mirror, logger)
	guard := auth.NewGuard(tokens, userService)

	var resolver metadata.Resolver
	if cfg.Spotify.ClientID != "" && cfg.Spotify.ClientSecret != "" {
		spotify, err := metadata.NewSpotifyResolver(metadata.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			APIURL:       cfg.Spotify.APIURL,
			TokenURL:     cfg.Spotify.TokenURL,
			HTTPClient:   &http.Client{Timeout: 15 * time.Second},
			Logger:       logger,
		})
		if err != nil {
			logger.Fatalf("setup spotify: %v", err)
		}
		resolver = spotify
	} else {
		logger.Warn("spotify credentials not set, external imports are disabled")
	}

	ytdlp := downloader.NewYtDlp(cfg.Downloader.YtDlpPath, cfg.Downloader.AudioFormat, cfg.Downloader.AudioQuality)
	manager := downloader.NewManager(downloader.Config{
		MaxConcurrent:     cfg.Downloader.MaxConcurrent,
		AllowedExtensions: cfg.Upload.Extensions,
		Mirror:            mirror,
		Logger:            logger,
	}, resolver, ytdlp, ytdlp, files, songService)

	gateway := transcode.NewGateway(transcode.Config{
		TempDir:   cfg.Storage.TempDir,
		Converter: transcode.NewFFmpeg(cfg.Transcode.FFmpegPath),
		Logger:    logger,
	})

	gin.SetMode(gin.ReleaseMode)
	handler := apphttp.NewHandler(apphttp.Deps{
		Users:          userService,
		Songs:          songService,
		Acquirer:       manager,
		Streamer:       gateway,
		Files:          files,
		Guard:          guard,
		Tokens:         tokens,
		Health:         sqlite.NewHealthChecker(db),
		AllowOrigins:   cfg.Server.AllowOrigins,
		MaxUploadBytes: cfg.Upload.MaxSizeMB << 20,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apphttp.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

// buildMirror returns nil when no bucket is configured.
func buildMirror(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Mirror, error) {
	if cfg.Mirror.Bucket == "" {
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Mirror.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Mirror.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Mirror.Endpoint)
			o.UsePathStyle = true
		}
	})

	mirror, err := storage.NewS3Mirror(client, storage.MirrorOptions{
		Bucket:    cfg.Mirror.Bucket,
		KeyPrefix: cfg.Mirror.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("mirroring songs to s3 bucket %s (region %s)", cfg.Mirror.Bucket, cfg.Mirror.Region)
	return mirror, nil
}
