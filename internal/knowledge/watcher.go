package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Rebuilder 可被触发全量重建的组件
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// CorpusWatcher 监听语料文件变化，防抖后触发重建
type CorpusWatcher struct {
	watcher  *fsnotify.Watcher
	target   Rebuilder
	files    map[string]struct{}
	debounce time.Duration
	logger   *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewCorpusWatcher 监听语料文件所在目录(编辑器常以重命名方式保存)
func NewCorpusWatcher(files []string, target Rebuilder, debounce time.Duration, logger *zap.Logger) (*CorpusWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监听失败: %w", err)
	}

	cw := &CorpusWatcher{
		watcher:  w,
		target:   target,
		files:    make(map[string]struct{}, len(files)),
		debounce: debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		cw.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("监听目录 %s 失败: %w", dir, err)
		}
	}
	return cw, nil
}

// Start 在后台处理文件事件，ctx结束或Close后退出
func (cw *CorpusWatcher) Start(ctx context.Context) {
	cw.wg.Add(1)
	go cw.loop(ctx)
}

func (cw *CorpusWatcher) loop(ctx context.Context) {
	defer cw.wg.Done()

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			trigger = timer.C
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("语料文件监听错误", zap.Error(err))
		case <-trigger:
			trigger = nil
			cw.logger.Info("语料文件变化，开始重建索引")
			if err := cw.target.Rebuild(ctx); err != nil {
				cw.logger.Error("语料变化后重建索引失败", zap.Error(err))
			}
		}
	}
}

func (cw *CorpusWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := cw.files[abs]
	return ok
}

// Close 停止监听并等待后台协程退出
func (cw *CorpusWatcher) Close() error {
	select {
	case <-cw.done:
		return nil
	default:
		close(cw.done)
	}
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
