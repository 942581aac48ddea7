package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	rerrors "github.com/dublyo/reciper/internal/errors"
)

// Options configures a Resolver (spec §2 component A).
type Options struct {
	TrustStore  *TrustStore
	Cache       *Cache
	Lock        *ProcessLock
	Interactive bool
	Decision    TrustDecision
	Logger      Logger
}

// Logger is the narrow logging surface the source resolver and trust gate
// need (SPEC_FULL.md §0: "the scheduler, source resolver, and trust gate
// log through a *zerolog.Logger"). Defined locally, rather than imported
// from internal/tools, so this package stays free of a dependency on the
// tool-dispatch layer — internal/logging.Logger satisfies both
// structurally. A nil Logger is a valid no-op.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// Resolver implements the Source Resolver & Trust Gate (spec §4.8) and
// satisfies tools.SourceFetcher structurally (no import of internal/tools
// needed — Go interfaces are structural), so there is no import cycle
// between the tool-dispatch layer and source resolution.
type Resolver struct {
	opts Options
}

// New builds a Resolver.
func New(opts Options) *Resolver {
	return &Resolver{opts: opts}
}

// Fetch resolves ref to a filesystem rooted at its content (spec §4.2
// "a path or URL to the template source, resolved via (A)").
func (r *Resolver) Fetch(ctx context.Context, ref string) (fs.FS, error) {
	dir, err := r.resolveDir(ctx, ref)
	if err != nil {
		return nil, err
	}
	return os.DirFS(dir), nil
}

// FetchRecipeBytes resolves ref to a recipe document's raw bytes plus its
// canonical form (spec §4.5 step 1, §4.1's `parse(bytes, source_path)`).
func (r *Resolver) FetchRecipeBytes(ctx context.Context, ref string) ([]byte, string, error) {
	kind, err := Classify(ref)
	if err != nil {
		return nil, "", rerrors.New(rerrors.CodeSecurityRejectedReference, err.Error())
	}

	if kind == KindLocal {
		data, canonical, err := fetchLocalBytes(ref)
		if err != nil {
			return nil, "", rerrors.New(rerrors.CodeUnresolvedReference, err.Error()).WithCause(err)
		}
		return data, canonical, nil
	}

	release, err := r.acquireLock(ctx)
	if err != nil {
		return nil, "", err
	}
	defer release()

	if err := r.gate(kind, ref); err != nil {
		return nil, "", err
	}

	dir, canonical, err := r.fetchRemoteDir(ctx, kind, ref)
	if err != nil {
		return nil, "", err
	}
	for _, name := range []string{"recipe.yml", "recipe.yaml"} {
		if data, readErr := os.ReadFile(filepath.Join(dir, name)); readErr == nil {
			return data, canonical, nil
		}
	}
	return nil, "", rerrors.New(rerrors.CodeUnresolvedReference, "no recipe.yml/recipe.yaml found at "+canonical)
}

// resolveDir resolves ref (local or remote) to a directory on disk,
// running the trust gate for anything remote (spec §4.8 "Trust gate":
// "Local references bypass the trust gate").
func (r *Resolver) resolveDir(ctx context.Context, ref string) (string, error) {
	kind, err := Classify(ref)
	if err != nil {
		return "", rerrors.New(rerrors.CodeSecurityRejectedReference, err.Error())
	}

	if kind == KindLocal {
		dir, _, err := fetchLocalDir(ref)
		if err != nil {
			return "", rerrors.New(rerrors.CodeUnresolvedReference, err.Error()).WithCause(err)
		}
		return dir, nil
	}

	release, err := r.acquireLock(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := r.gate(kind, ref); err != nil {
		return "", err
	}

	dir, _, err := r.fetchRemoteDir(ctx, kind, ref)
	return dir, err
}

// acquireLock takes the whole-process advisory lock over the trust store
// and cache (spec §5) before any remote reference's trust-gate read/write
// or fetch/cache access, so concurrent engine invocations sharing a
// working directory can't race the trust store JSON or the cache
// directory. A nil Lock (no file configured) is a no-op.
func (r *Resolver) acquireLock(ctx context.Context) (func(), error) {
	if r.opts.Lock == nil {
		return func() {}, nil
	}
	release, err := r.opts.Lock.Acquire(ctx)
	if err != nil {
		return nil, rerrors.New(rerrors.CodeFetchFailed, err.Error())
	}
	return release, nil
}

func (r *Resolver) gate(kind Kind, ref string) error {
	if r.opts.TrustStore == nil {
		return nil
	}
	creator := CreatorIdentity(kind, ref)
	if err := Gate(r.opts.TrustStore, creator, r.opts.Interactive, r.opts.Decision); err != nil {
		if r.opts.Logger != nil {
			r.opts.Logger.Warn("trust gate rejected source", "creator", creator, "ref", ref, "reason", err.Error())
		}
		switch err.(type) {
		case *BlockedError:
			return rerrors.New(rerrors.CodeBlockedCreator, err.Error())
		default:
			return rerrors.New(rerrors.CodeUntrustedSource, err.Error())
		}
	}
	if r.opts.Logger != nil {
		r.opts.Logger.Debug("trust gate passed", "creator", creator, "ref", ref)
	}
	return nil
}

// fetchRemoteDir fetches a git or http(s) source into the cache,
// returning the extracted directory and its canonical reference. Cache
// hits skip the network entirely (spec §6.5). Callers (resolveDir,
// FetchRecipeBytes) already hold the whole-process advisory lock before
// calling this, so it does not acquire it again.
func (r *Resolver) fetchRemoteDir(ctx context.Context, kind Kind, ref string) (dir, canonical string, err error) {
	switch kind {
	case KindGit:
		target := parseGitRef(ref)
		canonical = target.URL + "@" + target.Ref
		key := Key(target.URL, target.Ref)
		if r.opts.Cache != nil {
			if entry, ok := r.opts.Cache.Lookup(key); ok {
				if r.opts.Logger != nil {
					r.opts.Logger.Debug("source cache hit", "ref", canonical, "kind", "git")
				}
				return entry.Dir, canonical, nil
			}
		}
		destDir := r.contentDir(key)
		if r.opts.Logger != nil {
			r.opts.Logger.Info("fetching source", "ref", canonical, "kind", "git")
		}
		if err := cloneGit(ctx, target, destDir); err != nil {
			if r.opts.Logger != nil {
				r.opts.Logger.Error("fetch failed", err, "ref", canonical, "kind", "git")
			}
			return "", "", rerrors.New(rerrors.CodeFetchFailed, err.Error()).WithCause(err)
		}
		r.recordCache(key, destDir, target.pinned())
		return destDir, canonical, nil

	case KindHTTP:
		canonical = ref
		key := Key(ref, "")
		if r.opts.Cache != nil {
			if entry, ok := r.opts.Cache.Lookup(key); ok {
				if r.opts.Logger != nil {
					r.opts.Logger.Debug("source cache hit", "ref", canonical, "kind", "http")
				}
				return entry.Dir, canonical, nil
			}
		}
		destDir := r.contentDir(key)
		if r.opts.Logger != nil {
			r.opts.Logger.Info("fetching source", "ref", canonical, "kind", "http")
		}
		if err := fetchHTTPTarball(ctx, ref, destDir); err != nil {
			if r.opts.Logger != nil {
				r.opts.Logger.Error("fetch failed", err, "ref", canonical, "kind", "http")
			}
			return "", "", rerrors.New(rerrors.CodeFetchFailed, err.Error()).WithCause(err)
		}
		r.recordCache(key, destDir, false)
		return destDir, canonical, nil

	case KindPackage:
		// spec §1 Non-goals: "supplying the template content" — no
		// registry client ships, so package references resolve to
		// fetch_failed rather than silently falling back to anything.
		return "", "", rerrors.New(rerrors.CodeFetchFailed,
			"package-registry references are not resolvable by this engine; supply a local/git/http reference instead")
	}
	return "", "", rerrors.New(rerrors.CodeUnresolvedReference, "unrecognized source kind")
}

func (r *Resolver) contentDir(key string) string {
	if r.opts.Cache != nil {
		return r.opts.Cache.Dir(key)
	}
	return filepath.Join(os.TempDir(), "reciper-source-"+key)
}

func (r *Resolver) recordCache(key, dir string, pinned bool) {
	if r.opts.Cache == nil {
		return
	}
	_ = r.opts.Cache.Put(CacheEntry{Key: key, Dir: dir, FetchedAt: time.Now(), Pinned: pinned})
}
