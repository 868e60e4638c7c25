package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"local.dev/postboard/internal/app"
	"local.dev/postboard/internal/blob"
	"local.dev/postboard/internal/comments"
	"local.dev/postboard/internal/config"
	"local.dev/postboard/internal/datastore"
	"local.dev/postboard/internal/datastore/firestore"
	"local.dev/postboard/internal/datastore/memory"
	"local.dev/postboard/internal/datastore/redisstore"
	"local.dev/postboard/internal/httpx"
	"local.dev/postboard/internal/identity"
	"local.dev/postboard/internal/logger"
	"local.dev/postboard/internal/models"
	"local.dev/postboard/internal/posts"
	"local.dev/postboard/internal/shell"
)

// runtime holds the process-wide handles, created once and injected.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	store    datastore.DataStore
	blobs    datastore.BlobStore
	verifier identity.TokenVerifier
	resolver identity.Resolver
	closers  []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("shutdown: %v", err)
		}
	}
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New()
	if cfg.LogLevel == "quiet" {
		log = logger.Quiet()
	}
	rt := &runtime{cfg: cfg, log: log}

	var fb *firebase.App
	if cfg.NeedsFirebase() {
		fb, err = config.NewFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	// ---- document store
	switch cfg.DataBackend {
	case config.BackendFirestore:
		fs, err := fb.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("firestore init: %w", err)
		}
		rt.closers = append(rt.closers, fs.Close)
		rt.store = firestore.New(fs)
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rt.closers = append(rt.closers, rdb.Close)
		rs := redisstore.New(rdb)
		if err := rs.Ping(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		rt.store = rs
	default:
		config.EnsureDir(cfg.Paths.DataDir)
		mem := memory.NewStore(memory.WithSnapshot(cfg.Paths.SnapshotFile))
		if err := mem.SeedIfEmpty(ctx); err != nil {
			log.Warn("seed demo data: %v", err)
		}
		rt.store = mem
	}

	// ---- image storage
	switch cfg.BlobBackend {
	case config.BlobFirebase:
		sc, err := fb.Storage(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("storage init: %w", err)
		}
		bucket, err := sc.DefaultBucket()
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("storage bucket: %w", err)
		}
		rt.blobs = blob.NewGCSStore(bucket, cfg.StorageBucket)
	case config.BlobS3:
		s3s, err := blob.NewS3Store(cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.blobs = s3s
	default:
		config.EnsureDir(cfg.Paths.UploadsDir)
		rt.blobs = blob.NewLocalStore(cfg.Paths.UploadsDir).WithBaseURL(cfg.UploadsBaseURL)
	}

	// ---- identity
	if cfg.NoAuth {
		rt.resolver = identity.DevResolver{Key: cfg.DevUser}
	} else {
		ac, err := fb.Auth(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("auth init: %w", err)
		}
		rt.verifier = ac
		rt.resolver = identity.FirebaseResolver{Client: ac, IDToken: cfg.IDToken}
	}

	log.Info("data=%s blobs=%s no_auth=%v", cfg.DataBackend, cfg.BlobBackend, cfg.NoAuth)
	return rt, nil
}

// session builds the repositories and a started session with a resolved identity.
func (rt *runtime) session(ctx context.Context) (*app.Session, error) {
	ident := identity.NewProvider(rt.log)
	s := app.NewSession(app.Deps{
		Posts:    posts.NewRepository(rt.store, rt.blobs, rt.log),
		Comments: comments.NewRepository(rt.store, rt.log),
		Identity: ident,
		Log:      rt.log,
	})
	select {
	case <-ident.Start(ctx, rt.resolver):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := s.Start(ctx); err != nil {
		// the notice is already queued; the session stays usable
		rt.log.Warn("initial load: %v", err)
	}
	return s, nil
}

// withSession runs fn against a fresh session and prints its notices.
func withSession(fn func(ctx context.Context, rt *runtime, s *app.Session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer rt.Close()

		s, err := rt.session(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("start session: %v", err), 1)
		}
		defer s.Close()

		err = fn(ctx, rt, s)
		notices := s.Notices()
		shell.RenderNotices(os.Stderr, notices)
		if err != nil {
			if len(notices) > 0 {
				return cli.Exit("", 1)
			}
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}
}

func runShell(ctx context.Context, _ *runtime, s *app.Session) error {
	return shell.New(s, os.Stdout).Run(ctx, os.Stdin)
}

func main() {
	a := &cli.App{
		Name:   "postboard",
		Usage:  "browse posts and comments",
		Action: withSession(runShell),
		Commands: []*cli.Command{
			{
				Name:   "shell",
				Usage:  "interactive session (default)",
				Action: withSession(runShell),
			},
			{
				Name:  "posts",
				Usage: "list posts, newest first",
				Action: withSession(func(_ context.Context, _ *runtime, s *app.Session) error {
					shell.Render(os.Stdout, s.View(), time.Now())
					return nil
				}),
			},
			{
				Name:      "show",
				Usage:     "show a post and its comments",
				ArgsUsage: "<post-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("show needs a post id", 2)
					}
					return withSession(func(ctx context.Context, _ *runtime, s *app.Session) error {
						if err := s.SelectPost(ctx, id); err != nil {
							return err
						}
						shell.Render(os.Stdout, s.View(), time.Now())
						return nil
					})(c)
				},
			},
			{
				Name:      "comment",
				Usage:     "add a comment to a post",
				ArgsUsage: "<post-id> <text>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return cli.Exit("comment needs a post id and text", 2)
					}
					id := c.Args().Get(0)
					text := strings.Join(c.Args().Tail(), " ")
					return withSession(func(ctx context.Context, _ *runtime, s *app.Session) error {
						if err := s.SelectPost(ctx, id); err != nil {
							return err
						}
						if err := s.SetDraft(text); err != nil {
							return err
						}
						if _, err := s.SubmitComment(ctx); err != nil {
							return err
						}
						shell.Render(os.Stdout, s.View(), time.Now())
						return nil
					})(c)
				},
			},
			{
				Name:  "create",
				Usage: "create a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content", Required: true},
					&cli.PathFlag{Name: "image", Usage: "optional image file"},
				},
				Action: func(c *cli.Context) error {
					in := models.PostInput{Title: c.String("title"), Content: c.String("content")}
					var img *models.Image
					if p := c.Path("image"); p != "" {
						data, err := os.ReadFile(p)
						if err != nil {
							return cli.Exit(fmt.Sprintf("read image: %v", err), 2)
						}
						img = &models.Image{Name: filepath.Base(p), Data: data}
					}
					return withSession(func(ctx context.Context, _ *runtime, s *app.Session) error {
						if err := s.StartCreate(); err != nil {
							return err
						}
						id, err := s.SubmitPost(ctx, in, img)
						if err != nil {
							return err
						}
						fmt.Println(id)
						return nil
					})(c)
				},
			},
			{
				Name:  "whoami",
				Usage: "print the signed-in identity",
				Action: withSession(func(_ context.Context, _ *runtime, s *app.Session) error {
					shell.RenderUser(os.Stdout, s.View())
					return nil
				}),
			},
			{
				Name:   "serve",
				Usage:  "serve the feed over HTTP",
				Action: serve,
			},
		},
	}

	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rt.Close()

	ac := &httpx.AppCtx{
		Posts:    posts.NewRepository(rt.store, rt.blobs, rt.log),
		Comments: comments.NewRepository(rt.store, rt.log, comments.WithRollbackPolicy(comments.PurgeOwnAttempt)),
		Blobs:    rt.blobs,
		Auth:     rt.verifier,
		NoAuth:   rt.cfg.NoAuth,
		Log:      rt.log,
	}
	if rt.cfg.BlobBackend == config.BlobLocal {
		ac.UploadsDir = rt.cfg.Paths.UploadsDir
	}

	srv := &http.Server{Addr: ":" + rt.cfg.Port, Handler: httpx.NewMux(ac)}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	rt.log.Info("Server listening on %s DATA_DIR=%s", srv.Addr, rt.cfg.Paths.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
