// Package csvout 实现异步 CSV 文件写入。
// 使用带缓冲的 channel 实现热路径的非阻塞投递；实际编码与文件 I/O
// 在单个后台 goroutine 完成，行的落盘顺序与投递顺序严格一致。
package csvout

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"polymarket-latency-recorder/internal/core/model"
)

type opType int

const (
	opEmit opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	row  []string
	done chan error
}

// Writer 异步 CSV 写入器
// Emit 只负责投递，单消费者循环保证行序即投递序。
// 文件为空时自动写入表头；追加到已有文件不会重复表头。
type Writer struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op

	closeOnce sync.Once
	closeErr  error
	closed    int32

	sendMu sync.Mutex

	wg sync.WaitGroup
}

// NewWriter 创建 CSV 写入器
// 参数 dir: 输出目录（不存在则创建）
// 参数 filename: 文件名
// 参数 bufferSize: 写入缓冲区大小（channel capacity）
func NewWriter(dir, filename string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	// 空文件先写表头
	needHeader := false
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		needHeader = true
	}

	w := &Writer{
		path: path,
		ch:   make(chan op, bufferSize),
	}

	w.wg.Add(1)
	go w.loop(f, needHeader)

	return w, nil
}

// Path 获取输出文件路径
func (w *Writer) Path() string {
	return w.path
}

// Emit 异步写入一条输出行
// 行按投递顺序落盘；核心交出行后不再持有引用
func (w *Writer) Emit(row *model.OutputRow) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.ch <- op{typ: opEmit, row: row.Record()}
	return nil
}

// Flush 等待所有已投递的行落盘
// 在会话停止后调用一次，保证进程退出前全部行已持久化
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 关闭写入器（会先 flush）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		atomic.StoreInt32(&w.closed, 1)
		w.sendMu.Lock()
		defer w.sendMu.Unlock()
		done := make(chan error, 1)
		w.ch <- op{typ: opClose, done: done}
		w.closeErr = <-done
		close(w.ch)
	})
	w.wg.Wait()
	return w.closeErr
}

func (w *Writer) loop(f *os.File, needHeader bool) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20) // 1MB buffer
	cw := csv.NewWriter(bw)

	if needHeader {
		_ = cw.Write(model.CSVHeader)
		cw.Flush()
		_ = bw.Flush()
	}

	reply := func(err error, done chan error) {
		if done != nil {
			done <- err
		}
	}

	for req := range w.ch {
		switch req.typ {
		case opEmit:
			_ = cw.Write(req.row)
		case opFlush:
			cw.Flush()
			if err := cw.Error(); err != nil {
				reply(err, req.done)
				continue
			}
			reply(bw.Flush(), req.done)
		case opClose:
			cw.Flush()
			err := cw.Error()
			if ferr := bw.Flush(); err == nil {
				err = ferr
			}
			reply(err, req.done)
			return
		}
	}
}
