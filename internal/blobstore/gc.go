package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/animicaorg/animica/internal/common"
)

// RetentionPolicy is the deterministic ranking used to pick GC candidates:
// a row is eligible for deletion iff it is neither pinned,
// nor younger than ProtectYoungerThanSeconds, nor within the
// KeepNewestPerNamespace newest rows of its own namespace, nor within the
// KeepNewestGlobal newest rows overall.
type RetentionPolicy struct {
	ProtectYoungerThanSeconds int64
	KeepNewestPerNamespace    int
	KeepNewestGlobal          int
}

// Budget caps a single GC run: trimming proceeds until either budget is
// satisfied, capped by MaxDelete regardless.
type Budget struct {
	MaxBytes   int64
	MaxObjects int64
	MaxDelete  int
}

// Result summarizes one GC run.
type Result struct {
	DeletedRoots  []string
	BytesFreed    int64
	ObjectsFreed  int64
	FilesUnlinked int
}

// Eligible returns roots eligible for deletion under policy, oldest-first,
// without applying any budget trimming.
func (s *Store) Eligible(ctx context.Context, now int64, policy RetentionPolicy) ([]Meta, error) {
	all, err := s.allMeta(ctx)
	if err != nil {
		return nil, err
	}

	pinned := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT root FROM pins`)
	if err != nil {
		return nil, common.NewInternalError("blobstore.Eligible", err)
	}
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			rows.Close()
			return nil, common.NewInternalError("blobstore.Eligible", err)
		}
		pinned[root] = true
	}
	rows.Close()

	byNamespace := make(map[uint64][]Meta)
	for _, m := range all {
		byNamespace[m.Namespace] = append(byNamespace[m.Namespace], m)
	}
	nsProtected := make(map[string]bool)
	for _, group := range byNamespace {
		sortByCreatedAtDesc(group)
		n := policy.KeepNewestPerNamespace
		if n > len(group) {
			n = len(group)
		}
		for i := 0; i < n; i++ {
			nsProtected[group[i].Root] = true
		}
	}

	global := make([]Meta, len(all))
	copy(global, all)
	sortByCreatedAtDesc(global)
	globalProtected := make(map[string]bool)
	g := policy.KeepNewestGlobal
	if g > len(global) {
		g = len(global)
	}
	for i := 0; i < g; i++ {
		globalProtected[global[i].Root] = true
	}

	var eligible []Meta
	for _, m := range all {
		if pinned[m.Root] || nsProtected[m.Root] || globalProtected[m.Root] {
			continue
		}
		if now-m.CreatedAt < policy.ProtectYoungerThanSeconds {
			continue
		}
		eligible = append(eligible, m)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt < eligible[j].CreatedAt })
	return eligible, nil
}

// RunGC evaluates the retention policy, trims the eligible set to budget,
// deletes the DB rows in a single transaction, best-effort unlinks the
// backing files in bounded parallel, then prunes empty shard directories
// bottom-up.
func (s *Store) RunGC(ctx context.Context, now int64, policy RetentionPolicy, budget Budget) (Result, error) {
	eligible, err := s.Eligible(ctx, now, policy)
	if err != nil {
		return Result{}, err
	}

	selected := selectWithinBudget(eligible, budget)
	if len(selected) == 0 {
		return Result{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, common.NewInternalError("blobstore.RunGC", err)
	}
	for _, m := range selected {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blob_meta WHERE root = ?`, m.Root); err != nil {
			tx.Rollback()
			return Result{}, wrapSQLErr("blobstore.RunGC", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, wrapSQLErr("blobstore.RunGC", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	var unlinked int64
	for _, m := range selected {
		m := m
		g.Go(func() error {
			if err := os.Remove(filepath.Join(s.baseDir, m.Path)); err == nil {
				atomic.AddInt64(&unlinked, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	pruneEmptyDirs(filepath.Join(s.baseDir, "objects"))

	res := Result{FilesUnlinked: int(unlinked)}
	for _, m := range selected {
		res.DeletedRoots = append(res.DeletedRoots, m.Root)
		res.BytesFreed += m.Size
		res.ObjectsFreed++
	}
	return res, nil
}

// selectWithinBudget trims eligible (already oldest-first) to a prefix that
// never exceeds budget: an item is included only if adding it keeps the
// running byte/object/count totals within their caps, so selection stops at
// the first item that would overshoot rather than overshooting and
// stopping after.
func selectWithinBudget(eligible []Meta, budget Budget) []Meta {
	var out []Meta
	var bytes, objects int64
	for _, m := range eligible {
		if budget.MaxDelete > 0 && len(out)+1 > budget.MaxDelete {
			break
		}
		if budget.MaxBytes > 0 && bytes+m.Size > budget.MaxBytes {
			break
		}
		if budget.MaxObjects > 0 && objects+1 > budget.MaxObjects {
			break
		}
		out = append(out, m)
		bytes += m.Size
		objects++
	}
	return out
}

// pruneEmptyDirs removes empty directories under root, bottom-up, leaving
// root itself in place.
func pruneEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(root, e.Name())
		pruneEmptyDirs(sub)
		if inner, err := os.ReadDir(sub); err == nil && len(inner) == 0 {
			os.Remove(sub)
		}
	}
}
