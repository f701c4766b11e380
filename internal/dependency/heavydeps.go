package dependency

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// HeavyCache installs Python "heavy" dependencies into a shared, permanent
// cache directory, de-duplicated across workers via a Redis SETNX lock.
type HeavyCache struct {
	rdb       *redis.Client
	cacheRoot string
	heavyList []string
	log       logger.Logger
}

// NewHeavyCache builds a HeavyCache. heavyList is the configured set of
// root package names considered heavy (numpy, pandas, matplotlib, ...).
func NewHeavyCache(rdb *redis.Client, cacheRoot string, heavyList []string) *HeavyCache {
	return &HeavyCache{rdb: rdb, cacheRoot: cacheRoot, heavyList: heavyList, log: logger.Default().WithComponent("dependency")}
}

// IsHeavy reports whether requirement matches a configured heavy package by
// prefix. This intentionally admits false positives like "pandas-stubs"
// matching "pandas" rather than requiring an exact canonical-name match.
func (h *HeavyCache) IsHeavy(requirement string) (string, bool) {
	req := strings.TrimSpace(requirement)
	for _, heavy := range h.heavyList {
		if strings.HasPrefix(req, heavy) {
			return heavy, true
		}
	}
	return "", false
}

// Path returns the shared cache directory a heavy requirement installs
// into: /cache/pip_permanent/<req>.
func (h *HeavyCache) Path(requirement string) string {
	return filepath.Join(h.cacheRoot, requirement)
}

// EnsureInstalled installs requirement into its shared cache directory if
// not already present, using a distributed lock so concurrent workers
// racing on the same heavy dependency install it exactly once.
func (h *HeavyCache) EnsureInstalled(ctx context.Context, requirement, pipIndexURL string) (string, error) {
	dest := h.Path(requirement)

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return dest, nil
	}

	lockKey := "windmill:heavydep:" + requirement
	acquired, err := h.rdb.SetNX(ctx, lockKey, "installing", 10*time.Minute).Result()
	if err != nil {
		return "", fmt.Errorf("acquiring heavy-dep lock for %s: %w", requirement, err)
	}

	if !acquired {
		return h.waitForInstall(ctx, dest, lockKey)
	}
	defer h.rdb.Del(ctx, lockKey)

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return dest, nil
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("creating heavy dep cache dir: %w", err)
	}

	args := []string{"install", "--target", dest, requirement}
	if pipIndexURL != "" {
		args = append(args, "--index-url", pipIndexURL)
	}
	cmd := exec.Command("pip", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("installing heavy dep %s: %w: %s", requirement, err, string(out))
	}

	h.log.Info("installed heavy dependency into shared cache", "requirement", requirement, "path", dest)
	return dest, nil
}

// waitForInstall polls until the directory the winning worker is
// populating appears, or its lock expires without the directory showing up
// (in which case the caller should retry EnsureInstalled).
func (h *HeavyCache) waitForInstall(ctx context.Context, dest, lockKey string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if info, err := os.Stat(dest); err == nil && info.IsDir() {
				return dest, nil
			}
			exists, err := h.rdb.Exists(ctx, lockKey).Result()
			if err == nil && exists == 0 {
				return "", fmt.Errorf("heavy dep install lock for %s expired without producing a cache dir", lockKey)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
