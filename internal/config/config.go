package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
	BackendRedis     = "redis"

	BlobFirebase = "firebase"
	BlobS3       = "s3"
	BlobLocal    = "local"
)

type Paths struct {
	DataDir      string
	UploadsDir   string
	SnapshotFile string
}

type Config struct {
	NoAuth      bool
	DataBackend string
	BlobBackend string
	Paths       Paths
	LogLevel    string

	// Feed server
	Port           string
	UploadsBaseURL string

	// Firebase
	ProjectID          string
	StorageBucket      string
	ServiceAccountJSON string
	CredentialsFile    string
	AuthEmulatorHost   string
	FirestoreEmulator  string
	IDToken            string
	DevUser            string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AWS S3 / MinIO
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
	S3BucketName       string
	S3UseSSL           string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	noAuth := os.Getenv("NO_AUTH") == "1"
	defBackend := BackendFirestore
	defBlob := BlobFirebase
	if noAuth {
		defBackend = BackendMemory
		defBlob = BlobLocal
	}

	cfg := &Config{
		NoAuth:      noAuth,
		DataBackend: getEnv("DATA_BACKEND", defBackend),
		BlobBackend: getEnv("BLOB_BACKEND", defBlob),
		Paths:       DefaultPaths(),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		Port:           getEnv("PORT", "8088"),
		UploadsBaseURL: os.Getenv("UPLOADS_BASE_URL"),

		ProjectID:          os.Getenv("FIREBASE_PROJECT_ID"),
		StorageBucket:      os.Getenv("FIREBASE_STORAGE_BUCKET"),
		ServiceAccountJSON: os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile:    os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		AuthEmulatorHost:   os.Getenv("FIREBASE_AUTH_EMULATOR_HOST"),
		FirestoreEmulator:  os.Getenv("FIRESTORE_EMULATOR_HOST"),
		IDToken:            os.Getenv("FIREBASE_ID_TOKEN"),
		DevUser:            os.Getenv("DEV_USER"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSEndpoint:        os.Getenv("AWS_ENDPOINT"),
		S3BucketName:       getEnv("S3_BUCKET_NAME", "postboard-images"),
		S3UseSSL:           getEnv("S3_USE_SSL", "true"),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	switch cfg.DataBackend {
	case BackendFirestore, BackendMemory, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown DATA_BACKEND %q", cfg.DataBackend)
	}
	switch cfg.BlobBackend {
	case BlobFirebase, BlobS3, BlobLocal:
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
	return cfg, nil
}

// NeedsFirebase reports whether any configured component talks to Firebase.
func (c *Config) NeedsFirebase() bool {
	return !c.NoAuth || c.DataBackend == BackendFirestore || c.BlobBackend == BlobFirebase
}

func DefaultPaths() Paths {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/data"
		if _, err := os.Stat(dataDir); err != nil {
			dataDir = filepath.Join(".", "data")
		}
	}
	return Paths{
		DataDir:      dataDir,
		UploadsDir:   filepath.Join(dataDir, "uploads"),
		SnapshotFile: filepath.Join(dataDir, "store.json"),
	}
}

func EnsureDir(dir string) { _ = os.MkdirAll(dir, 0o755) }

// NewFirebaseApp initializes the process-wide Firebase app from a service
// account JSON, a credentials file, or an emulator host, in that order.
func NewFirebaseApp(ctx context.Context, cfg *Config) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID not set")
	}

	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS %q not readable: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.AuthEmulatorHost != "" || cfg.FirestoreEmulator != "":
		opts = append(opts, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("missing Firebase credentials: set FIREBASE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS, or use an emulator / NO_AUTH=1")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
