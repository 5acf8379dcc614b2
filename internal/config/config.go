package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr         string
		AllowOrigins []string
	}
	Database struct {
		Path string
	}
	Storage struct {
		Dir     string
		TempDir string
	}
	Auth struct {
		Secret     string
		SecretFile string
		TokenTTL   time.Duration
	}
	Spotify struct {
		ClientID     string
		ClientSecret string
		APIURL       string
		TokenURL     string
	}
	Downloader struct {
		YtDlpPath     string
		AudioFormat   string
		AudioQuality  string
		MaxConcurrent int
	}
	Transcode struct {
		FFmpegPath string
	}
	Upload struct {
		MaxSizeMB  int64
		Extensions []string
	}
	Mirror struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// real environment wins over .env entries
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LOCKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("server.alloworigins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("database.path", "data/locker.db")
	v.SetDefault("storage.dir", "data/uploads")
	v.SetDefault("storage.tempdir", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secretfile", "data/secret_key")
	v.SetDefault("auth.tokenttl", "24h")
	v.SetDefault("spotify.clientid", "")
	v.SetDefault("spotify.clientsecret", "")
	v.SetDefault("spotify.apiurl", "https://api.spotify.com/v1")
	v.SetDefault("spotify.tokenurl", "https://accounts.spotify.com/api/token")
	v.SetDefault("downloader.ytdlppath", "yt-dlp")
	v.SetDefault("downloader.audioformat", "mp3")
	v.SetDefault("downloader.audioquality", "192K")
	v.SetDefault("downloader.maxconcurrent", 2)
	v.SetDefault("transcode.ffmpegpath", "ffmpeg")
	v.SetDefault("upload.maxsizemb", 100)
	v.SetDefault("upload.extensions", []string{"mp3", "wav", "ogg"})
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.keyprefix", "music-locker")
	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// comma separated env values arrive as a single element
	cfg.Server.AllowOrigins = splitList(cfg.Server.AllowOrigins)
	cfg.Upload.Extensions = splitList(cfg.Upload.Extensions)

	if cfg.Auth.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("auth token ttl must be positive, got %s", cfg.Auth.TokenTTL)
	}

	secret, err := resolveSecret(cfg.Auth.Secret, cfg.Auth.SecretFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.Secret = secret

	return cfg, nil
}

// resolveSecret prefers an explicit value, then a persisted file, and finally
// generates a random secret and persists it so tokens survive restarts.
func resolveSecret(explicit, path string) (string, error) {
	if s := strings.TrimSpace(explicit); s != "" {
		return s, nil
	}
	if path == "" {
		return "", errors.New("auth secret is not configured and no secret file is set")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read secret file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", fmt.Errorf("write secret file: %w", err)
	}
	return secret, nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
