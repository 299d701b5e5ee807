// Package aegconf file: aegconf/watcher.go
package aegconf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 2 * time.Second

// Watch 监视配置文件，变更稳定 debounce 之后重新加载并回调 onChange。
// 监视的是所在目录，编辑器以重命名方式保存文件时也能收到事件。
// 新配置校验失败时只记录日志，继续使用旧配置。ctx 结束时停止监视。
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config)) error {
	if debounce <= 0 {
		debounce = debounceDuration
	}
	target := filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("监视配置目录 '%s' 失败: %w", filepath.Dir(target), err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(target)
		if err != nil {
			slog.Error("[ConfigWatcher] 重新加载配置失败，保留当前配置", "path", target, "error", err)
			return
		}
		slog.Info("[ConfigWatcher] 配置已重新加载", "path", target, "resources", len(cfg.Resources))
		onChange(cfg)
	}

	go func() {
		defer watcher.Close()
		slog.Info("[ConfigWatcher] 配置文件监视已启动", "path", target)
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
				mu.Unlock()
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("[ConfigWatcher] 文件监视器报告错误", "error", errWatch)
			}
		}
	}()
	return nil
}
