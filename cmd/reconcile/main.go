// Command reconcile lists blobs that no document version references and,
// with -delete, removes them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evault/evault/internal/config"
	"github.com/evault/evault/internal/database"
	"github.com/evault/evault/internal/document/repository"
	"github.com/evault/evault/internal/storage"
	"github.com/evault/evault/pkg/logger"
	"github.com/hashicorp/go-multierror"
)

func main() {
	del := flag.Bool("delete", false, "delete orphaned blobs instead of only listing them")
	minAge := flag.Duration("min-age", time.Hour, "ignore blobs younger than this (uploads in flight)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required: in-memory documents cannot be reconciled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectAttempts)
	if err != nil {
		logger.Fatalf("could not connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	repo, err := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database).Collection("documents"))
	if err != nil {
		logger.Fatalf("documents repository: %v", err)
	}
	blobs, err := storage.New(ctx, cfg.Storage.Config)
	if err != nil {
		logger.Fatalf("blob storage: %v", err)
	}

	res, err := reconcile(ctx, repo, blobs, options{Delete: *del, MinAge: *minAge, Now: time.Now()})
	report(os.Stdout, res, *del)
	if err != nil {
		logger.Fatalf("reconcile: %v", err)
	}
}

type options struct {
	Delete bool
	MinAge time.Duration
	Now    time.Time
}

type result struct {
	Scanned int
	Orphans []string
	Deleted int
}

// reconcile compares stored blob keys with the keys referenced by documents.
// Keys whose timestamp prefix is newer than MinAge are left alone.
func reconcile(ctx context.Context, repo repository.Repository, blobs storage.BlobStore, opts options) (result, error) {
	var res result
	referenced, err := repo.StorageKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("list referenced keys: %w", err)
	}
	keys, err := blobs.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list blobs: %w", err)
	}
	res.Scanned = len(keys)
	cutoff := opts.Now.Add(-opts.MinAge)
	for _, k := range keys {
		if _, ok := referenced[k]; ok {
			continue
		}
		if t, ok := keyTime(k); ok && t.After(cutoff) {
			continue
		}
		res.Orphans = append(res.Orphans, k)
	}
	sort.Strings(res.Orphans)
	if !opts.Delete {
		return res, nil
	}

	var errs *multierror.Error
	for _, k := range res.Orphans {
		if err := blobs.Delete(ctx, k); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete %s: %w", k, err))
			continue
		}
		res.Deleted++
		logger.Debugf("deleted orphaned blob %s", k)
	}
	return res, errs.ErrorOrNil()
}

// keyTime reads the unix-millis prefix written by storage.GenerateKey.
func keyTime(key string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(key, "-")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func report(w io.Writer, res result, deleted bool) {
	for _, k := range res.Orphans {
		fmt.Fprintln(w, k)
	}
	verb := "found"
	n := len(res.Orphans)
	if deleted {
		verb = "deleted"
		n = res.Deleted
	}
	fmt.Fprintf(w, "scanned %d blobs, %s %d orphaned\n", res.Scanned, verb, n)
}
