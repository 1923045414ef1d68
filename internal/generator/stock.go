package generator

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wfunc/teleprompt/internal/errors"
)

// StockPicker 从素材目录随机挑兜底图片
type StockPicker struct {
	dir string

	mu    sync.Mutex
	names []string
}

// NewStockPicker 创建素材选择器，目录内容启动时扫一次
func NewStockPicker(dir string) (*StockPicker, error) {
	p := &StockPicker{dir: dir}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload 重新扫描素材目录
func (p *StockPicker) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrNotFound, "素材目录不可读")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return errors.New(errors.ErrNotFound, "素材目录没有可用图片")
	}

	p.mu.Lock()
	p.names = names
	p.mu.Unlock()
	return nil
}

// Pick 随机挑一张，返回对外URL路径
func (p *StockPicker) Pick() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.names) == 0 {
		return "", errors.New(errors.ErrGenerationUnavailable, "没有兜底素材")
	}
	return stockURLPrefix + p.names[rand.Intn(len(p.names))], nil
}

// Count 素材数量
func (p *StockPicker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}
