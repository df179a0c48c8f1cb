package common

import (
	"sync"
)

// ParallelExecutor は並列処理を管理する構造体
type ParallelExecutor struct {
	maxWorkers int
	wg         sync.WaitGroup
	semaphore  chan struct{}
}

// NewParallelExecutor は新しいParallelExecutorを作成
func NewParallelExecutor(maxWorkers int) *ParallelExecutor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &ParallelExecutor{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Execute はタスクを並列で実行
func (p *ParallelExecutor) Execute(task func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.semaphore <- struct{}{}        // セマフォ取得（同時実行数制限）
		defer func() { <-p.semaphore }() // セマフォ解放
		task()
	}()
}

// Wait はすべてのタスクの完了を待つ
func (p *ParallelExecutor) Wait() {
	p.wg.Wait()
}

// ProcessResult は処理結果を保持する構造体
type ProcessResult struct {
	Item    string
	Success bool
	Error   error
}

// RunEach は items それぞれに fn を最大 maxWorkers 並列で適用し、入力順の結果を返します。
// 1件の失敗は他の処理に影響しません
func RunEach(items []string, maxWorkers int, fn func(item string) error) []ProcessResult {
	results := make([]ProcessResult, len(items))
	if len(items) == 0 {
		return results
	}
	if len(items) < maxWorkers {
		maxWorkers = len(items)
	}

	executor := NewParallelExecutor(maxWorkers)
	resultsMutex := &sync.Mutex{}

	for i, item := range items {
		idx := i
		target := item
		executor.Execute(func() {
			err := runIsolated(target, fn)
			resultsMutex.Lock()
			results[idx] = ProcessResult{Item: target, Success: err == nil, Error: err}
			resultsMutex.Unlock()
		})
	}

	executor.Wait()
	return results
}

// パニックを1件分の失敗として扱う
func runIsolated(item string, fn func(string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindUnhandled, Message: "panic during processing", Err: panicError{value: r}}
		}
	}()
	return fn(item)
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmtAny(p.value) }

// CollectResults は並列処理の結果を収集するヘルパー関数
func CollectResults(results []ProcessResult) (successCount, failCount int) {
	for _, result := range results {
		if result.Success {
			successCount++
		} else {
			failCount++
		}
	}
	return
}

// FailedItems は失敗した項目とエラーメッセージを返します
func FailedItems(results []ProcessResult) map[string]string {
	failed := map[string]string{}
	for _, r := range results {
		if !r.Success && r.Error != nil {
			failed[r.Item] = r.Error.Error()
		}
	}
	return failed
}
